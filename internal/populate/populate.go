// Package populate maps validated extraction results onto the entity
// store: find-or-create water bodies and species, upsert regulations
// keyed by (water body, species, year), and append audit entries.
package populate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fisheries-data/creel/internal/merge"
	"github.com/fisheries-data/creel/internal/regs"
	"github.com/fisheries-data/creel/internal/store"
)

// Options configures the population engine.
type Options struct {
	Store        store.Store
	Locks        *store.RunLocks // Optional; created when nil
	DefaultState string          // Jurisdiction stamped on new water bodies
	Logger       *slog.Logger
}

// Engine performs population runs against the entity store.
type Engine struct {
	store        store.Store
	locks        *store.RunLocks
	defaultState string
	logger       *slog.Logger
}

// New creates a population engine.
func New(opts Options) *Engine {
	if opts.Locks == nil {
		opts.Locks = store.NewRunLocks()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:        opts.Store,
		locks:        opts.Locks,
		defaultState: opts.DefaultState,
		logger:       opts.Logger,
	}
}

// Populate writes merged extraction results into the store. Each lake
// entry is processed independently: a failure resolving one entry is
// captured in the result's errors and the remaining entries proceed.
// Runs for the same source document are serialized.
func (e *Engine) Populate(ctx context.Context, merged regs.MergedExtractionResult, sourceDocumentID string, regulationYear int) *regs.PopulationResult {
	start := time.Now()
	result := &regs.PopulationResult{}

	release := e.locks.Acquire(sourceDocumentID)
	defer release()

	for _, reg := range merged.Regulations {
		vr := merge.ValidateAndClean(reg)
		result.Warnings = append(result.Warnings, vr.Warnings...)
		if !vr.IsValid {
			for _, verr := range vr.Errors {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: excluded from population: %s", reg.WaterBody, verr))
			}
			continue
		}

		if err := e.populateLake(ctx, vr.Cleaned, sourceDocumentID, regulationYear, result); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", vr.Cleaned.WaterBody, err))
			e.logger.Warn("lake population failed", "water_body", vr.Cleaned.WaterBody, "err", err)
		}
	}

	result.Success = len(result.Errors) == 0
	result.Elapsed = time.Since(start)
	return result
}

// populateLake resolves one water body and writes its regulation rows.
func (e *Engine) populateLake(ctx context.Context, reg regs.ExtractedRegulation, sourceDocumentID string, year int, result *regs.PopulationResult) error {
	wb, created, err := e.findOrCreateWaterBody(ctx, reg, sourceDocumentID)
	if err != nil {
		return err
	}
	if created {
		result.WaterBodiesCreated++
	}

	rows := reduceRules(reg)
	species := make([]string, 0, len(rows))
	for name := range rows {
		species = append(species, name)
	}
	sort.Strings(species)

	touched := false
	for _, name := range species {
		rule := rows[name]
		sp, spCreated, err := e.findOrCreateSpecies(ctx, name, sourceDocumentID)
		if err != nil {
			return fmt.Errorf("species %q: %w", name, err)
		}
		if spCreated {
			result.SpeciesCreated++
		}

		regCreated, err := e.upsertRegulation(ctx, wb, sp, rule, reg, sourceDocumentID, year)
		if err != nil {
			return fmt.Errorf("species %q: %w", name, err)
		}
		touched = true
		if regCreated {
			result.RegulationsCreated++
		} else {
			result.RegulationsUpdated++
		}
	}

	if touched && !created {
		result.WaterBodiesUpdated++
	}
	return nil
}

// findOrCreateWaterBody resolves by normalized name within the default
// state; newly created bodies carry the AI provenance flag.
func (e *Engine) findOrCreateWaterBody(ctx context.Context, reg regs.ExtractedRegulation, runID string) (*store.WaterBody, bool, error) {
	norm := regs.NormalizeName(reg.WaterBody)
	if norm == "" {
		return nil, false, fmt.Errorf("water body name normalizes to empty")
	}

	wb, err := e.store.FindWaterBodyByName(ctx, norm, e.defaultState)
	if err != nil {
		return nil, false, err
	}
	if wb != nil {
		return wb, false, nil
	}

	wb = &store.WaterBody{
		Name:           reg.WaterBody,
		NormalizedName: norm,
		State:          e.defaultState,
		County:         reg.Locality,
		AICreated:      true,
	}
	if err := e.store.CreateWaterBody(ctx, wb); err != nil {
		return nil, false, err
	}
	e.audit(ctx, runID, "water_body", wb.ID, "create", nil)
	return wb, true, nil
}

// findOrCreateSpecies resolves by case-insensitive common name; unseen
// species are created with minimal metadata and flagged for review.
func (e *Engine) findOrCreateSpecies(ctx context.Context, commonName, runID string) (*store.Species, bool, error) {
	norm := regs.NormalizeName(commonName)
	if norm == "" {
		return nil, false, fmt.Errorf("species name normalizes to empty")
	}

	sp, err := e.store.FindSpeciesByName(ctx, norm)
	if err != nil {
		return nil, false, err
	}
	if sp != nil {
		return sp, false, nil
	}

	sp = &store.Species{
		CommonName:     commonName,
		NormalizedName: norm,
		NeedsReview:    true,
	}
	if err := e.store.CreateSpecies(ctx, sp); err != nil {
		return nil, false, err
	}
	e.audit(ctx, runID, "species", sp.ID, "create", nil)
	return sp, true, nil
}

// upsertRegulation writes one (water body, species, year) row, auditing
// changed fields with before/after values on update.
func (e *Engine) upsertRegulation(ctx context.Context, wb *store.WaterBody, sp *store.Species, rule regs.SpeciesRule, reg regs.ExtractedRegulation, sourceDocumentID string, year int) (bool, error) {
	row := &store.Regulation{
		WaterBodyID:      wb.ID,
		SpeciesID:        sp.ID,
		Year:             year,
		Kind:             string(rule.Kind),
		DailyLimit:       rule.DailyLimit,
		PossessionLimit:  rule.PossessionLimit,
		MinimumSize:      rule.MinimumSize,
		MaximumSize:      rule.MaximumSize,
		ProtectedSlot:    rule.ProtectedSlot,
		SeasonInfo:       rule.SeasonInfo,
		CatchAndRelease:  rule.CatchAndRelease,
		Notes:            rule.Notes,
		Confidence:       reg.Confidence,
		SourceDocumentID: sourceDocumentID,
	}

	existing, err := e.store.GetRegulation(ctx, wb.ID, sp.ID, year)
	if err != nil {
		return false, err
	}

	created, err := e.store.UpsertRegulation(ctx, row)
	if err != nil {
		return false, err
	}

	if created {
		e.audit(ctx, sourceDocumentID, "regulation", row.ID, "create", nil)
	} else if existing != nil {
		if changes := diffRegulations(existing, row); len(changes) > 0 {
			e.audit(ctx, sourceDocumentID, "regulation", row.ID, "update", changes)
		}
	}
	return created, nil
}

// reduceRules folds a lake's rule list into one rule per species so the
// (water body, species, year) key holds. Multiple kinds for the same
// species collapse to combined; first concrete limit wins per field.
func reduceRules(reg regs.ExtractedRegulation) map[string]regs.SpeciesRule {
	rows := make(map[string]regs.SpeciesRule)
	for _, rule := range reg.Rules {
		key := rule.Species
		existing, ok := rows[key]
		if !ok {
			rows[key] = rule
			continue
		}
		if existing.Kind != rule.Kind {
			existing.Kind = regs.KindCombined
		}
		if existing.DailyLimit == nil {
			existing.DailyLimit = rule.DailyLimit
		}
		if existing.PossessionLimit == nil {
			existing.PossessionLimit = rule.PossessionLimit
		}
		if existing.MinimumSize == nil {
			existing.MinimumSize = rule.MinimumSize
		}
		if existing.MaximumSize == nil {
			existing.MaximumSize = rule.MaximumSize
		}
		if existing.ProtectedSlot == "" {
			existing.ProtectedSlot = rule.ProtectedSlot
		}
		if existing.SeasonInfo == "" {
			existing.SeasonInfo = rule.SeasonInfo
		}
		if rule.CatchAndRelease {
			existing.CatchAndRelease = true
		}
		if existing.Notes == "" {
			existing.Notes = rule.Notes
		} else if rule.Notes != "" && rule.Notes != existing.Notes {
			existing.Notes += " " + rule.Notes
		}
		rows[key] = existing
	}
	return rows
}

// diffRegulations computes {field: [from, to]} for audit entries.
func diffRegulations(before, after *store.Regulation) map[string][2]any {
	changes := make(map[string][2]any)

	if before.Kind != after.Kind {
		changes["kind"] = [2]any{before.Kind, after.Kind}
	}
	diffInt(changes, "daily_limit", before.DailyLimit, after.DailyLimit)
	diffInt(changes, "possession_limit", before.PossessionLimit, after.PossessionLimit)
	diffFloat(changes, "minimum_size", before.MinimumSize, after.MinimumSize)
	diffFloat(changes, "maximum_size", before.MaximumSize, after.MaximumSize)
	if before.ProtectedSlot != after.ProtectedSlot {
		changes["protected_slot"] = [2]any{before.ProtectedSlot, after.ProtectedSlot}
	}
	if before.SeasonInfo != after.SeasonInfo {
		changes["season_info"] = [2]any{before.SeasonInfo, after.SeasonInfo}
	}
	if before.CatchAndRelease != after.CatchAndRelease {
		changes["catch_and_release"] = [2]any{before.CatchAndRelease, after.CatchAndRelease}
	}
	if before.Notes != after.Notes {
		changes["notes"] = [2]any{before.Notes, after.Notes}
	}
	return changes
}

func diffInt(changes map[string][2]any, field string, before, after *int) {
	if intValue(before) != intValue(after) {
		changes[field] = [2]any{deref(before), deref(after)}
	}
}

func diffFloat(changes map[string][2]any, field string, before, after *float64) {
	if floatValue(before) != floatValue(after) {
		changes[field] = [2]any{derefF(before), derefF(after)}
	}
}

func intValue(v *int) int {
	if v == nil {
		return -1 << 30
	}
	return *v
}

func floatValue(v *float64) float64 {
	if v == nil {
		return -1 << 30
	}
	return *v
}

func deref(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefF(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// audit appends an audit entry; audit failures are logged, never fatal.
func (e *Engine) audit(ctx context.Context, runID, entityType, entityID, action string, changes map[string][2]any) {
	entry := &store.AuditEntry{
		RunID:      runID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}
	if len(changes) > 0 {
		if b, err := json.Marshal(changes); err == nil {
			entry.Changes = string(b)
		}
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.Warn("failed to append audit entry", "entity", entityType, "id", entityID, "err", err)
	}
}
