package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS water_bodies (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	state           TEXT NOT NULL,
	county          TEXT NOT NULL DEFAULT '',
	ai_created      INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	UNIQUE (normalized_name, state)
);

CREATE TABLE IF NOT EXISTS species (
	id              TEXT PRIMARY KEY,
	common_name     TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	needs_review    INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS regulations (
	id                 TEXT PRIMARY KEY,
	water_body_id      TEXT NOT NULL REFERENCES water_bodies(id),
	species_id         TEXT NOT NULL REFERENCES species(id),
	year               INTEGER NOT NULL,
	kind               TEXT NOT NULL,
	daily_limit        INTEGER,
	possession_limit   INTEGER,
	minimum_size       REAL,
	maximum_size       REAL,
	protected_slot     TEXT NOT NULL DEFAULT '',
	season_info        TEXT NOT NULL DEFAULT '',
	catch_and_release  INTEGER NOT NULL DEFAULT 0,
	notes              TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0,
	source_document_id TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	UNIQUE (water_body_id, species_id, year)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	changes     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id                    TEXT PRIMARY KEY,
	document_id           TEXT NOT NULL,
	filename              TEXT NOT NULL,
	year                  INTEGER NOT NULL,
	outcome               TEXT NOT NULL,
	lakes_processed       INTEGER NOT NULL DEFAULT 0,
	regulations_extracted INTEGER NOT NULL DEFAULT 0,
	report_json           TEXT NOT NULL DEFAULT '',
	elapsed_ms            INTEGER NOT NULL DEFAULT 0,
	created_at            TEXT NOT NULL
);
`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the entity store at path.
// Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; population runs serialize per document
	// above this layer, busy_timeout covers cross-document overlap.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindWaterBodyByName looks up a water body by normalized name within a
// state. Returns (nil, nil) when absent.
func (s *SQLiteStore) FindWaterBodyByName(ctx context.Context, normalizedName, state string) (*WaterBody, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, normalized_name, state, county, ai_created, created_at
		 FROM water_bodies WHERE normalized_name = ? AND state = ?`, normalizedName, state)

	var wb WaterBody
	var created string
	err := row.Scan(&wb.ID, &wb.Name, &wb.NormalizedName, &wb.State, &wb.County, &wb.AICreated, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find water body: %w", err)
	}
	wb.CreatedAt = parseTime(created)
	return &wb, nil
}

// CreateWaterBody inserts a new water body, assigning an ID if empty.
func (s *SQLiteStore) CreateWaterBody(ctx context.Context, wb *WaterBody) error {
	if wb.ID == "" {
		wb.ID = uuid.New().String()
	}
	if wb.CreatedAt.IsZero() {
		wb.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO water_bodies (id, name, normalized_name, state, county, ai_created, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		wb.ID, wb.Name, wb.NormalizedName, wb.State, wb.County, wb.AICreated, formatTime(wb.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create water body: %w", err)
	}
	return nil
}

// FindSpeciesByName looks up a species by normalized common name.
// Returns (nil, nil) when absent.
func (s *SQLiteStore) FindSpeciesByName(ctx context.Context, normalizedName string) (*Species, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, common_name, normalized_name, needs_review, created_at
		 FROM species WHERE normalized_name = ?`, normalizedName)

	var sp Species
	var created string
	err := row.Scan(&sp.ID, &sp.CommonName, &sp.NormalizedName, &sp.NeedsReview, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find species: %w", err)
	}
	sp.CreatedAt = parseTime(created)
	return &sp, nil
}

// CreateSpecies inserts a new species, assigning an ID if empty.
func (s *SQLiteStore) CreateSpecies(ctx context.Context, sp *Species) error {
	if sp.ID == "" {
		sp.ID = uuid.New().String()
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO species (id, common_name, normalized_name, needs_review, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sp.ID, sp.CommonName, sp.NormalizedName, sp.NeedsReview, formatTime(sp.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create species: %w", err)
	}
	return nil
}

// GetRegulation fetches the regulation row for the upsert key.
// Returns (nil, nil) when absent.
func (s *SQLiteStore) GetRegulation(ctx context.Context, waterBodyID, speciesID string, year int) (*Regulation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, water_body_id, species_id, year, kind, daily_limit, possession_limit,
		        minimum_size, maximum_size, protected_slot, season_info, catch_and_release,
		        notes, confidence, source_document_id, created_at, updated_at
		 FROM regulations WHERE water_body_id = ? AND species_id = ? AND year = ?`,
		waterBodyID, speciesID, year)

	var reg Regulation
	var created, updated string
	err := row.Scan(&reg.ID, &reg.WaterBodyID, &reg.SpeciesID, &reg.Year, &reg.Kind,
		&reg.DailyLimit, &reg.PossessionLimit, &reg.MinimumSize, &reg.MaximumSize,
		&reg.ProtectedSlot, &reg.SeasonInfo, &reg.CatchAndRelease, &reg.Notes,
		&reg.Confidence, &reg.SourceDocumentID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get regulation: %w", err)
	}
	reg.CreatedAt = parseTime(created)
	reg.UpdatedAt = parseTime(updated)
	return &reg, nil
}

// UpsertRegulation inserts or updates in place by the (water body,
// species, year) key. The key is the sole identity: re-running with the
// same inputs never creates duplicate rows.
func (s *SQLiteStore) UpsertRegulation(ctx context.Context, reg *Regulation) (bool, error) {
	existing, err := s.GetRegulation(ctx, reg.WaterBodyID, reg.SpeciesID, reg.Year)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if existing == nil {
		if reg.ID == "" {
			reg.ID = uuid.New().String()
		}
		reg.CreatedAt = now
		reg.UpdatedAt = now
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO regulations (id, water_body_id, species_id, year, kind, daily_limit,
			   possession_limit, minimum_size, maximum_size, protected_slot, season_info,
			   catch_and_release, notes, confidence, source_document_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reg.ID, reg.WaterBodyID, reg.SpeciesID, reg.Year, reg.Kind, reg.DailyLimit,
			reg.PossessionLimit, reg.MinimumSize, reg.MaximumSize, reg.ProtectedSlot,
			reg.SeasonInfo, reg.CatchAndRelease, reg.Notes, reg.Confidence,
			reg.SourceDocumentID, formatTime(now), formatTime(now))
		if err != nil {
			return false, fmt.Errorf("failed to insert regulation: %w", err)
		}
		return true, nil
	}

	reg.ID = existing.ID
	reg.CreatedAt = existing.CreatedAt
	reg.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`UPDATE regulations SET kind = ?, daily_limit = ?, possession_limit = ?,
		   minimum_size = ?, maximum_size = ?, protected_slot = ?, season_info = ?,
		   catch_and_release = ?, notes = ?, confidence = ?, source_document_id = ?,
		   updated_at = ?
		 WHERE id = ?`,
		reg.Kind, reg.DailyLimit, reg.PossessionLimit, reg.MinimumSize, reg.MaximumSize,
		reg.ProtectedSlot, reg.SeasonInfo, reg.CatchAndRelease, reg.Notes, reg.Confidence,
		reg.SourceDocumentID, formatTime(now), reg.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update regulation: %w", err)
	}
	return false, nil
}

// AppendAudit appends one audit entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, run_id, entity_type, entity_id, action, changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.EntityType, entry.EntityID, entry.Action, entry.Changes,
		formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// RecordRun persists one pipeline run record.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *IngestRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, document_id, filename, year, outcome, lakes_processed,
		   regulations_extracted, report_json, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DocumentID, run.Filename, run.Year, run.Outcome, run.LakesProcessed,
		run.RegulationsExtracted, run.ReportJSON, run.Elapsed.Milliseconds(),
		formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent ingest runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, filename, year, outcome, lakes_processed,
		        regulations_extracted, report_json, elapsed_ms, created_at
		 FROM ingest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var run IngestRun
		var created string
		var elapsedMS int64
		if err := rows.Scan(&run.ID, &run.DocumentID, &run.Filename, &run.Year, &run.Outcome,
			&run.LakesProcessed, &run.RegulationsExtracted, &run.ReportJSON, &elapsedMS, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		run.CreatedAt = parseTime(created)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Counts returns entity totals.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM water_bodies),
		        (SELECT COUNT(*) FROM species),
		        (SELECT COUNT(*) FROM regulations),
		        (SELECT COUNT(*) FROM ingest_runs)`)
	if err := row.Scan(&c.WaterBodies, &c.Species, &c.Regulations, &c.Runs); err != nil {
		return c, fmt.Errorf("failed to count entities: %w", err)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
