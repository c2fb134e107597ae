package cascade

import (
	"fmt"
	"strings"

	"github.com/optionagent/agent/internal/domain"
)

func c1Prompt(symbols []string, failedReasons map[string]string) string {
	var sb strings.Builder
	sb.WriteString("No symbols survived the general pre-filter. Decide whether to proceed, reject, or add symbols back.\n")
	sb.WriteString("Watchlist and failure reasons:\n")
	for _, s := range symbols {
		fmt.Fprintf(&sb, "- %s: %s\n", s, failedReasons[s])
	}
	sb.WriteString("Respond with JSON only: {\"decision\": \"PROCEED\"|\"REJECT\"|\"PROCEED_WITH_CAUTION\", \"symbols_to_add\": string[], \"reasoning\": string}")
	return sb.String()
}

func c2Prompt(nearMisses []domain.Candidate) string {
	var sb strings.Builder
	sb.WriteString("No candidates survived the high-weight chain filter. Near misses and their violated factors:\n")
	for _, c := range nearMisses {
		fmt.Fprintf(&sb, "- %s %s violations=%d\n", c.Symbol, c.Strategy, c.ViolationCount)
	}
	sb.WriteString("Respond with JSON only: {\"decision\": \"PROCEED\"|\"REJECT\"|\"PROCEED_WITH_CAUTION\", \"threshold_adjustments\": [{\"factor\": string, \"old_threshold\": number, \"new_threshold\": number}], \"reasoning\": string}")
	return sb.String()
}

func c3Prompt() string {
	return "No candidates survived the low-weight filter and no near-misses exist. Decide whether to proceed with an empty result or reject the run.\n" +
		"Respond with JSON only: {\"decision\": \"PROCEED\"|\"REJECT\", \"reasoning\": string, \"recommendation\": string}"
}
