// Package merge combines extraction results produced independently from
// different chunks of the same document, deduplicating by normalized
// water-body identity, and validates records before population.
package merge

import (
	"fmt"

	"github.com/fisheries-data/creel/internal/regs"
)

// mergedEntry accumulates one water body's rules across chunks.
type mergedEntry struct {
	reg regs.ExtractedRegulation

	// ruleConf holds the source confidence of each rule in reg.Rules,
	// used to resolve conflicting numeric limits.
	ruleConf []float64

	// confidences of every contributing extraction, weight 1 each.
	confidences []float64
}

// Merge combines per-chunk extraction results into one deduplicated
// result. Entries collide on normalized (water body, locality); their
// rule lists are concatenated, conflicting numeric limits resolve to
// the higher source confidence (the loser is recorded as a warning),
// and confidence becomes the mean of contributors.
func Merge(results []regs.ExtractionResult) regs.MergedExtractionResult {
	merged := regs.MergedExtractionResult{Success: true}

	byKey := make(map[string]*mergedEntry)
	var order []string

	for _, res := range results {
		merged.LakesProcessed += res.LakesProcessed
		merged.Warnings = append(merged.Warnings, res.Warnings...)
		if res.Cancelled {
			merged.Cancelled = true
		}
		if !res.Success {
			merged.Success = false
			if res.Error != "" {
				merged.Warnings = append(merged.Warnings, res.Error)
			}
		}

		for _, reg := range res.Regulations {
			key := regs.MergeKey(reg.WaterBody, reg.Locality)
			entry, ok := byKey[key]
			if !ok {
				e := &mergedEntry{reg: reg, confidences: []float64{reg.Confidence}}
				// The rule slice is owned by the caller; conflict
				// resolution must never write through to it.
				e.reg.Rules = append([]regs.SpeciesRule(nil), reg.Rules...)
				e.ruleConf = make([]float64, len(reg.Rules))
				for i := range e.ruleConf {
					e.ruleConf[i] = reg.Confidence
				}
				byKey[key] = e
				order = append(order, key)
				continue
			}
			warnings := entry.absorb(reg)
			merged.Warnings = append(merged.Warnings, warnings...)
		}
	}

	for _, key := range order {
		entry := byKey[key]
		entry.reg.Confidence = mean(entry.confidences)
		merged.Regulations = append(merged.Regulations, entry.reg)
		merged.RegulationsExtracted += len(entry.reg.Rules)
	}

	return merged
}

// absorb folds another chunk's extraction of the same water body into
// the entry, returning merge warnings for any conflicts resolved.
func (e *mergedEntry) absorb(incoming regs.ExtractedRegulation) []string {
	var warnings []string

	e.confidences = append(e.confidences, incoming.Confidence)
	if incoming.Experimental {
		e.reg.Experimental = true
	}
	if e.reg.GeneralNotes == "" {
		e.reg.GeneralNotes = incoming.GeneralNotes
	} else if incoming.GeneralNotes != "" && incoming.GeneralNotes != e.reg.GeneralNotes {
		e.reg.GeneralNotes += " " + incoming.GeneralNotes
	}

	for _, rule := range incoming.Rules {
		idx := e.conflictingRule(rule)
		if idx < 0 {
			e.reg.Rules = append(e.reg.Rules, rule)
			e.ruleConf = append(e.ruleConf, incoming.Confidence)
			continue
		}

		// Conflicting numeric limits: higher source confidence wins,
		// the loser is always logged, never silently dropped.
		existing := e.reg.Rules[idx]
		if incoming.Confidence > e.ruleConf[idx] {
			warnings = append(warnings, fmt.Sprintf(
				"%s/%s: replaced rule %s (confidence %.2f) with conflicting rule from chunk %d (confidence %.2f)",
				e.reg.WaterBody, existing.Species, describeLimits(existing), e.ruleConf[idx], incoming.SourceChunk, incoming.Confidence))
			e.reg.Rules[idx] = rule
			e.ruleConf[idx] = incoming.Confidence
		} else {
			warnings = append(warnings, fmt.Sprintf(
				"%s/%s: dropped conflicting rule %s from chunk %d (confidence %.2f <= %.2f)",
				e.reg.WaterBody, rule.Species, describeLimits(rule), incoming.SourceChunk, incoming.Confidence, e.ruleConf[idx]))
		}
	}

	return warnings
}

// conflictingRule returns the index of an existing rule for the same
// species whose numeric limits conflict with the incoming rule, or -1.
func (e *mergedEntry) conflictingRule(incoming regs.SpeciesRule) int {
	for i, existing := range e.reg.Rules {
		if regs.NormalizeName(existing.Species) != regs.NormalizeName(incoming.Species) {
			continue
		}
		if numericConflict(existing.DailyLimit, incoming.DailyLimit) ||
			numericConflict(existing.PossessionLimit, incoming.PossessionLimit) ||
			floatConflict(existing.MinimumSize, incoming.MinimumSize) ||
			floatConflict(existing.MaximumSize, incoming.MaximumSize) {
			return i
		}
	}
	return -1
}

func numericConflict(a, b *int) bool {
	return a != nil && b != nil && *a != *b
}

func floatConflict(a, b *float64) bool {
	return a != nil && b != nil && *a != *b
}

func describeLimits(r regs.SpeciesRule) string {
	s := string(r.Kind)
	if r.DailyLimit != nil {
		s += fmt.Sprintf(" daily=%d", *r.DailyLimit)
	}
	if r.PossessionLimit != nil {
		s += fmt.Sprintf(" possession=%d", *r.PossessionLimit)
	}
	if r.MinimumSize != nil {
		s += fmt.Sprintf(" min=%.1f", *r.MinimumSize)
	}
	if r.MaximumSize != nil {
		s += fmt.Sprintf(" max=%.1f", *r.MaximumSize)
	}
	return s
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
