// Package cascade implements the staged filter cascade (S1-S4) and the
// reasoning checkpoints (C1-C3) that sit between its stages.
package cascade

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/optionagent/agent/internal/domain"
)

// checkpointResponse is the JSON shape every checkpoint prompt is parsed
// into; fields not relevant to a given checkpoint are left zero.
type checkpointResponse struct {
	Decision             string                   `json:"decision"`
	SymbolsToAdd         []string                 `json:"symbols_to_add"`
	ThresholdAdjustments []rawThresholdAdjustment `json:"threshold_adjustments"`
	Reasoning            string                   `json:"reasoning"`
	Recommendation       string                   `json:"recommendation"`
}

type rawThresholdAdjustment struct {
	Factor       string  `json:"factor"`
	OldThreshold float64 `json:"old_threshold"`
	NewThreshold float64 `json:"new_threshold"`
}

// extractJSONObject returns the first balanced {...} block in s, tolerating
// surrounding prose the way a chat model tends to wrap its answer.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseCheckpoint parses a raw LLM response into a ReasoningDecision. A
// response that cannot be reduced to the required JSON shape degrades to
// REJECT with a recorded note rather than failing the run.
func parseCheckpoint(checkpointID, raw string) domain.ReasoningDecision {
	block, ok := extractJSONObject(raw)
	if !ok {
		return unparseable(checkpointID, raw)
	}

	var parsed checkpointResponse
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return unparseable(checkpointID, raw)
	}

	decision := domain.CheckpointDecisionKind(strings.ToUpper(strings.TrimSpace(parsed.Decision)))
	switch decision {
	case domain.DecisionProceed, domain.DecisionProceedWithCaution, domain.DecisionReject:
	default:
		return unparseable(checkpointID, raw)
	}

	adjustments := make([]domain.ThresholdAdjustment, 0, len(parsed.ThresholdAdjustments))
	for _, a := range parsed.ThresholdAdjustments {
		adjustments = append(adjustments, domain.ThresholdAdjustment{
			Factor: a.Factor, OldThreshold: a.OldThreshold, NewThreshold: a.NewThreshold,
		})
	}

	return domain.ReasoningDecision{
		CheckpointID:         checkpointID,
		Decision:             decision,
		Reasoning:            parsed.Reasoning,
		SymbolsToAdd:         parsed.SymbolsToAdd,
		ThresholdAdjustments: adjustments,
		Recommendation:       parsed.Recommendation,
	}
}

func unparseable(checkpointID, raw string) domain.ReasoningDecision {
	return domain.ReasoningDecision{
		CheckpointID: checkpointID,
		Decision:     domain.DecisionReject,
		Reasoning:    fmt.Sprintf("reasoning response unparseable, degrading to REJECT; raw=%q", truncate(raw, 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
