package merge

import (
	"fmt"

	"github.com/fisheries-data/creel/internal/regs"
)

// ValidateAndClean range-checks numeric fields and normalizes text
// fields of one extracted regulation. Records failing validation carry
// IsValid=false and are excluded from population by the caller.
func ValidateAndClean(reg regs.ExtractedRegulation) regs.ValidationResult {
	result := regs.ValidationResult{Cleaned: reg}
	cleaned := &result.Cleaned

	cleaned.WaterBody = regs.CollapseWhitespace(cleaned.WaterBody)
	cleaned.Locality = regs.CollapseWhitespace(cleaned.Locality)
	cleaned.GeneralNotes = regs.CollapseWhitespace(cleaned.GeneralNotes)

	if cleaned.WaterBody == "" {
		result.Errors = append(result.Errors, "water body name is empty")
	}

	if cleaned.Confidence < 0 || cleaned.Confidence > 1 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("confidence %.2f outside [0,1], clamped", cleaned.Confidence))
		cleaned.Confidence = clamp01(cleaned.Confidence)
	}

	rules := make([]regs.SpeciesRule, 0, len(cleaned.Rules))
	for _, rule := range cleaned.Rules {
		rule.Species = regs.CollapseWhitespace(rule.Species)
		rule.ProtectedSlot = regs.CollapseWhitespace(rule.ProtectedSlot)
		rule.SeasonInfo = regs.CollapseWhitespace(rule.SeasonInfo)
		rule.Notes = regs.CollapseWhitespace(rule.Notes)

		if !regs.ValidKind(rule.Kind) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: unknown regulation kind %q", rule.Species, rule.Kind))
		}
		if rule.DailyLimit != nil && *rule.DailyLimit < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: negative daily limit %d", rule.Species, *rule.DailyLimit))
		}
		if rule.PossessionLimit != nil && *rule.PossessionLimit < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: negative possession limit %d", rule.Species, *rule.PossessionLimit))
		}
		if rule.MinimumSize != nil && *rule.MinimumSize < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: negative minimum size %.1f", rule.Species, *rule.MinimumSize))
		}
		if rule.MaximumSize != nil && *rule.MaximumSize < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: negative maximum size %.1f", rule.Species, *rule.MaximumSize))
		}
		// A size limit with min > max is an error, not a warning.
		if rule.MinimumSize != nil && rule.MaximumSize != nil && *rule.MinimumSize > *rule.MaximumSize {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: minimum size %.1f exceeds maximum size %.1f", rule.Species, *rule.MinimumSize, *rule.MaximumSize))
		}

		rules = append(rules, rule)
	}
	cleaned.Rules = rules

	// Nothing to persist.
	if len(cleaned.Rules) == 0 && cleaned.GeneralNotes == "" {
		result.Errors = append(result.Errors, "regulation has no species rules and no general notes")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
