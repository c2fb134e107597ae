package ips

import "github.com/optionagent/agent/internal/domain"

// compare applies direction/threshold semantics to value, with an
// optional additive tolerance that widens the passing side of the
// comparison. Only opt-delta (±0.01) and opt-bid-ask-spread (+0.02) carry
// a nonzero tolerance — every other factor compares with strict
// arithmetic.
//
// between is a true two-sided comparison (threshold <= value <=
// thresholdMax); collapsing it to gte is a bug, not a convention.
func compare(value float64, dir domain.Direction, threshold, thresholdMax, tolerance float64) bool {
	// A nonzero tolerance is widened by a tiny epsilon so a value landing
	// exactly on threshold±tolerance still passes despite float rounding
	// (1.12-1.00 evaluates slightly above 0.10+0.02).
	if tolerance > 0 {
		tolerance += 1e-9
	}
	switch dir {
	case domain.DirLT:
		return value < threshold+tolerance
	case domain.DirLTE:
		return value <= threshold+tolerance
	case domain.DirGT:
		return value > threshold-tolerance
	case domain.DirGTE:
		return value >= threshold-tolerance
	case domain.DirEQ:
		return absFloat(value-threshold) <= tolerance
	case domain.DirNEQ:
		return absFloat(value-threshold) > tolerance
	case domain.DirBetween:
		return value >= threshold-tolerance && value <= thresholdMax+tolerance
	default:
		return false
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
