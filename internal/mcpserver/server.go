package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer builds the WalletGuard MCP server with all tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("walletguard", "1.0.0")

	client := NewGuardClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolEvaluateTransaction, h.HandleEvaluateTransaction)
	s.AddTool(ToolAnalyzeTransaction, h.HandleAnalyzeTransaction)
	s.AddTool(ToolCheckAddress, h.HandleCheckAddress)
	s.AddTool(ToolWalletProfile, h.HandleWalletProfile)

	return s
}
