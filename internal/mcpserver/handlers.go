package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *GuardClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *GuardClient) *Handlers {
	return &Handlers{client: client}
}

// HandleEvaluateTransaction runs the full prevention pipeline.
func (h *Handlers) HandleEvaluateTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	if from == "" {
		return mcp.NewToolResultError("from is required"), nil
	}
	to := req.GetString("to", "")
	if to == "" {
		return mcp.NewToolResultError("to is required"), nil
	}
	value := req.GetString("value", "")
	data := req.GetString("data", "")
	chainID := int64(req.GetInt("chain_id", 0))

	raw, err := h.client.EvaluateTransaction(ctx, from, to, value, data, chainID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Evaluation failed: %v", err)), nil
	}

	text, err := formatEvaluation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse evaluation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleAnalyzeTransaction runs only the static analyzer.
func (h *Handlers) HandleAnalyzeTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	if from == "" {
		return mcp.NewToolResultError("from is required"), nil
	}
	to := req.GetString("to", "")
	if to == "" {
		return mcp.NewToolResultError("to is required"), nil
	}

	raw, err := h.client.AnalyzeTransaction(ctx, from, to, req.GetString("value", ""), req.GetString("data", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckAddress looks up an address in the threat intelligence feeds.
func (h *Handlers) HandleCheckAddress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.CheckAddress(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check address: %v", err)), nil
	}

	text, err := formatIntel(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse intel: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleWalletProfile returns the learned behavioral profile for a wallet.
func (h *Handlers) HandleWalletProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.WalletProfile(ctx, address)
	if err != nil {
		if strings.Contains(err.Error(), "(404)") {
			return mcp.NewToolResultText(fmt.Sprintf(
				"No behavioral profile yet for %s. WalletGuard learns a wallet's habits from "+
					"its allowed transactions; this wallet has not been observed.", address)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	text, err := formatProfile(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse profile: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Response formatters ---

type threatItem struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
}

type evaluationResponse struct {
	Allowed         bool         `json:"allowed"`
	RiskLevel       string       `json:"riskLevel"`
	RiskScore       int          `json:"riskScore"`
	Threats         []threatItem `json:"threats"`
	Recommendations []string     `json:"recommendations"`
	BlockedReasons  []string     `json:"blockedReasons"`
}

func formatEvaluation(raw json.RawMessage) (string, error) {
	var resp evaluationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	if resp.Allowed {
		sb.WriteString("Verdict: ALLOWED\n")
	} else {
		sb.WriteString("Verdict: BLOCKED\n")
	}
	fmt.Fprintf(&sb, "Risk: %s (score %d)\n", resp.RiskLevel, resp.RiskScore)

	if len(resp.Threats) > 0 {
		fmt.Fprintf(&sb, "\nThreats (%d):\n", len(resp.Threats))
		for _, t := range resp.Threats {
			fmt.Fprintf(&sb, "  - [%s] %s: %s (confidence %.0f%%)\n",
				strings.ToUpper(t.Severity), t.Type, t.Description, t.Confidence*100)
		}
	} else {
		sb.WriteString("\nNo threats detected.\n")
	}

	if len(resp.BlockedReasons) > 0 {
		sb.WriteString("\nBlocked because:\n")
		for _, r := range resp.BlockedReasons {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}

	if len(resp.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range resp.Recommendations {
			fmt.Fprintf(&sb, "  %s\n", r)
		}
	}

	return sb.String(), nil
}

func formatAnalysis(raw json.RawMessage) (string, error) {
	var resp struct {
		Risk struct {
			RiskLevel       string   `json:"riskLevel"`
			RiskScore       int      `json:"riskScore"`
			Warnings        []string `json:"warnings"`
			Recommendations []string `json:"recommendations"`
			ShouldProceed   bool     `json:"shouldProceed"`
		} `json:"risk"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Risk.RiskLevel == "" {
		return "", fmt.Errorf("unexpected analysis response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Static analysis: %s (score %d)\n", resp.Risk.RiskLevel, resp.Risk.RiskScore)
	if resp.Risk.ShouldProceed {
		sb.WriteString("Assessment: OK to proceed with normal caution\n")
	} else {
		sb.WriteString("Assessment: do NOT proceed without review\n")
	}

	for _, w := range resp.Risk.Warnings {
		fmt.Fprintf(&sb, "  ! %s\n", w)
	}
	for _, r := range resp.Risk.Recommendations {
		fmt.Fprintf(&sb, "  %s\n", r)
	}
	if resp.Explanation != "" {
		fmt.Fprintf(&sb, "\n%s\n", resp.Explanation)
	}
	return sb.String(), nil
}

func formatIntel(raw json.RawMessage) (string, error) {
	var resp struct {
		Address string `json:"address"`
		Clean   bool   `json:"clean"`
		Threats []struct {
			Severity    string `json:"severity"`
			Description string `json:"description"`
			Category    string `json:"category"`
		} `json:"threats"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("unexpected intel response format")
	}

	if resp.Clean {
		return fmt.Sprintf("%s is clean: no threat intelligence records.", resp.Address), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s has %d threat record(s):\n", resp.Address, len(resp.Threats))
	for _, t := range resp.Threats {
		fmt.Fprintf(&sb, "  - [%s]", strings.ToUpper(t.Severity))
		if t.Category != "" {
			fmt.Fprintf(&sb, " %s:", t.Category)
		}
		fmt.Fprintf(&sb, " %s\n", t.Description)
	}
	sb.WriteString("\nDo not interact with this address without independent verification.")
	return sb.String(), nil
}

func formatProfile(raw json.RawMessage) (string, error) {
	var p struct {
		Address      string   `json:"address"`
		Transactions int      `json:"transactions"`
		Recipients   int      `json:"recipients"`
		MaxValueETH  float64  `json:"maxValueEth"`
		AvgValueETH  float64  `json:"avgValueEth"`
		Selectors    []string `json:"selectors"`
		LastActivity string   `json:"lastActivity"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}
	if p.Address == "" {
		return "", fmt.Errorf("unexpected profile response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Behavioral profile for %s:\n", p.Address)
	fmt.Fprintf(&sb, "  Observed transactions: %d\n", p.Transactions)
	fmt.Fprintf(&sb, "  Known recipients: %d\n", p.Recipients)
	fmt.Fprintf(&sb, "  Typical value: avg %.4f, max %.4f\n", p.AvgValueETH, p.MaxValueETH)
	if len(p.Selectors) > 0 {
		fmt.Fprintf(&sb, "  Function selectors seen: %s\n", strings.Join(p.Selectors, ", "))
	}
	if p.LastActivity != "" {
		fmt.Fprintf(&sb, "  Last activity: %s\n", p.LastActivity)
	}
	return sb.String(), nil
}
