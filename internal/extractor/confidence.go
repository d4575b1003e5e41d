package extractor

import "github.com/fisheries-data/creel/internal/regs"

// ConfidencePolicy is the completeness-based default scoring applied
// when the backend supplies no explicit confidence. The exact values
// are policy knobs, not a contract.
type ConfidencePolicy struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultConfidencePolicy returns the default scoring values.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{High: 0.9, Medium: 0.6, Low: 0.3}
}

// Score assigns a confidence based on field completeness: every rule
// complete (a recognized kind plus at least one concrete limit field)
// scores high, a partial set scores medium, none scores low.
func (p ConfidencePolicy) Score(reg *regs.ExtractedRegulation) float64 {
	if len(reg.Rules) == 0 {
		return p.Low
	}

	complete := 0
	for _, r := range reg.Rules {
		if ruleComplete(r) {
			complete++
		}
	}

	switch {
	case complete == len(reg.Rules):
		return p.High
	case complete > 0:
		return p.Medium
	default:
		return p.Low
	}
}

func ruleComplete(r regs.SpeciesRule) bool {
	if !regs.ValidKind(r.Kind) {
		return false
	}
	return r.DailyLimit != nil || r.PossessionLimit != nil ||
		r.MinimumSize != nil || r.MaximumSize != nil ||
		r.ProtectedSlot != "" || r.SeasonInfo != "" || r.CatchAndRelease
}
