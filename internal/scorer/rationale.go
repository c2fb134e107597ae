package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/optionagent/agent/internal/domain"
)

type rationaleResponse struct {
	Rationale             string  `json:"rationale"`
	NewsSummary           *string `json:"news_summary"`
	MacroContext          *string `json:"macro_context"`
	OutOfIPSJustification *string `json:"out_of_ips_justification"`
}

// Rationale issues one Reasoning call per selected candidate and attaches
// the parsed result. A parse failure never fails the run: it falls back
// to a templated rationale built from the candidate's numeric fields.
func (s *Scorer) Rationale(ctx context.Context, c domain.Candidate) domain.Rationale {
	raw, err := s.gw.Reason(ctx, rationalePrompt(c))
	if err != nil {
		return fallbackRationale(c)
	}

	block, ok := extractJSONObject(raw)
	if !ok {
		return fallbackRationale(c)
	}
	var parsed rationaleResponse
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return fallbackRationale(c)
	}
	return domain.Rationale{
		Text:                  parsed.Rationale,
		NewsSummary:           parsed.NewsSummary,
		MacroContext:          parsed.MacroContext,
		OutOfIPSJustification: parsed.OutOfIPSJustification,
	}
}

func fallbackRationale(c domain.Candidate) domain.Rationale {
	text := fmt.Sprintf(
		"%s %s: entry_mid=%.2f max_profit=%.2f max_loss=%.2f est_pop=%.0f%% ips_score=%.0f tier=%s",
		c.Symbol, c.Strategy, c.EntryMid, c.MaxProfit, c.MaxLoss, c.EstPOP*100, c.IPSScore, c.Tier,
	)
	return domain.Rationale{Text: text}
}

func rationalePrompt(c domain.Candidate) string {
	short := c.ShortLeg()
	long := c.LongLeg()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a rationale for this candidate:\nSymbol: %s\nStrategy: %s\n", c.Symbol, c.Strategy)
	if short != nil && long != nil {
		fmt.Fprintf(&sb, "Short strike: %.2f (delta %.3f)\nLong strike: %.2f\n", short.Contract.Strike, short.Contract.Delta, long.Contract.Strike)
	}
	fmt.Fprintf(&sb, "Entry mid: %.2f, max profit: %.2f, max loss: %.2f, est POP: %.2f\n", c.EntryMid, c.MaxProfit, c.MaxLoss, c.EstPOP)
	fmt.Fprintf(&sb, "IPS score: %.1f, tier: %s\n", c.IPSScore, c.Tier)
	sb.WriteString("Respond with JSON only: {\"rationale\": string, \"news_summary\": string|null, \"macro_context\": string|null, \"out_of_ips_justification\": string|null}")
	return sb.String()
}

// extractJSONObject returns the first balanced {...} block in s.
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
