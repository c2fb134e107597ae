package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optionagent/agent/internal/domain"
)

func TestExtractJSONObjectToleratesSurroundingProse(t *testing.T) {
	raw := `Sure, here is my answer:\n{"decision":"PROCEED","symbols_to_add":["AAA"],"reasoning":"near-miss"}\nLet me know if you need more.`
	block, ok := extractJSONObject(raw)
	assert.True(t, ok)
	assert.Contains(t, block, `"decision":"PROCEED"`)
}

func TestParseCheckpointProceedWithSymbols(t *testing.T) {
	raw := `{"decision":"PROCEED","symbols_to_add":["AAA"],"reasoning":"near-miss"}`
	d := parseCheckpoint("C1", raw)
	assert.Equal(t, domain.DecisionProceed, d.Decision)
	assert.Equal(t, []string{"AAA"}, d.SymbolsToAdd)
	assert.Equal(t, "near-miss", d.Reasoning)
}

func TestParseCheckpointUnparseableDegradesToReject(t *testing.T) {
	d := parseCheckpoint("C1", "not json at all")
	assert.Equal(t, domain.DecisionReject, d.Decision)
	assert.Equal(t, "C1", d.CheckpointID)
}

func TestParseCheckpointUnknownDecisionDegradesToReject(t *testing.T) {
	d := parseCheckpoint("C2", `{"decision":"MAYBE","reasoning":"unsure"}`)
	assert.Equal(t, domain.DecisionReject, d.Decision)
}

func TestParseCheckpointThresholdAdjustments(t *testing.T) {
	raw := `{"decision":"PROCEED_WITH_CAUTION","threshold_adjustments":[{"factor":"opt-delta","old_threshold":0.2,"new_threshold":0.25}],"reasoning":"relax delta"}`
	d := parseCheckpoint("C2", raw)
	assert.Equal(t, domain.DecisionProceedWithCaution, d.Decision)
	if assert.Len(t, d.ThresholdAdjustments, 1) {
		assert.Equal(t, "opt-delta", d.ThresholdAdjustments[0].Factor)
		assert.Equal(t, 0.25, d.ThresholdAdjustments[0].NewThreshold)
	}
}
