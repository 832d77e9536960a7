package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the WalletGuard MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolEvaluateTransaction = mcp.NewTool("evaluate_transaction",
	mcp.WithDescription(
		"Run a transaction through the full WalletGuard threat prevention pipeline before signing it. "+
			"Simulates the transaction, checks both parties against threat intelligence, scans for attack "+
			"patterns and behavioral anomalies, and returns an allow/block verdict with a risk score, "+
			"the threats found, and safety recommendations. Use this before approving any transaction."),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Sender wallet address (e.g. '0x1234...')")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Recipient or contract address (e.g. '0xabcd...')")),
	mcp.WithString("value",
		mcp.Description("Transaction value in wei, hex ('0xde0b6b3a7640000') or decimal. Defaults to '0'.")),
	mcp.WithString("data",
		mcp.Description("Transaction calldata as a hex string (e.g. '0x095ea7b3...'). Defaults to '0x'.")),
	mcp.WithNumber("chain_id",
		mcp.Description("Chain ID to simulate against (default 1 for Ethereum mainnet)")),
)

var ToolAnalyzeTransaction = mcp.NewTool("analyze_transaction",
	mcp.WithDescription(
		"Run only the static analyzer over a transaction: risk factors, severity, score, and a "+
			"human-readable explanation. Faster than evaluate_transaction but does not simulate, "+
			"check threat intelligence, or produce a block decision. Use this for a quick read on "+
			"why a transaction looks risky."),
	mcp.WithString("from",
		mcp.Required(),
		mcp.Description("Sender wallet address")),
	mcp.WithString("to",
		mcp.Required(),
		mcp.Description("Recipient or contract address")),
	mcp.WithString("value",
		mcp.Description("Transaction value in wei, hex or decimal")),
	mcp.WithString("data",
		mcp.Description("Transaction calldata as a hex string")),
)

var ToolCheckAddress = mcp.NewTool("check_address",
	mcp.WithDescription(
		"Look up an address in WalletGuard's threat intelligence feeds. "+
			"Returns any known threat records (phishing, scams, drainers, sanctioned addresses) "+
			"with their severity, or confirms the address is clean."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The address to check (e.g. '0x1234...')")),
)

var ToolWalletProfile = mcp.NewTool("wallet_profile",
	mcp.WithDescription(
		"Get the learned behavioral profile for a wallet: how many transactions WalletGuard has "+
			"observed, the set of known recipients and function selectors, and typical value ranges. "+
			"Useful for judging whether a new transaction would look out of character."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address to profile (e.g. '0x1234...')")),
)
