// Package store is the entity store boundary for the pipeline: water
// bodies, species, regulations, audit entries and ingest run records.
// The pipeline only requires find-by-name and upsert-by-key plus a
// lightweight audit append.
package store

import (
	"context"
	"time"
)

// WaterBody is a lake, river or stream within a state.
type WaterBody struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	State          string    `json:"state"`
	County         string    `json:"county,omitempty"`
	AICreated      bool      `json:"ai_created"` // Provenance: AI-created vs curated
	CreatedAt      time.Time `json:"created_at"`
}

// Species is a fish species keyed by common name.
type Species struct {
	ID             string    `json:"id"`
	CommonName     string    `json:"common_name"`
	NormalizedName string    `json:"normalized_name"`
	NeedsReview    bool      `json:"needs_review"` // Unseen names are flagged for human review
	CreatedAt      time.Time `json:"created_at"`
}

// Regulation is one regulation row per (water body, species, year).
type Regulation struct {
	ID               string    `json:"id"`
	WaterBodyID      string    `json:"water_body_id"`
	SpeciesID        string    `json:"species_id"`
	Year             int       `json:"year"`
	Kind             string    `json:"kind"`
	DailyLimit       *int      `json:"daily_limit,omitempty"`
	PossessionLimit  *int      `json:"possession_limit,omitempty"`
	MinimumSize      *float64  `json:"minimum_size,omitempty"`
	MaximumSize      *float64  `json:"maximum_size,omitempty"`
	ProtectedSlot    string    `json:"protected_slot,omitempty"`
	SeasonInfo       string    `json:"season_info,omitempty"`
	CatchAndRelease  bool      `json:"catch_and_release"`
	Notes            string    `json:"notes,omitempty"`
	Confidence       float64   `json:"confidence"`
	SourceDocumentID string    `json:"source_document_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AuditEntry captures one entity change during population, including
// before/after field values for updates.
type AuditEntry struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	EntityType string    `json:"entity_type"` // "water_body", "species", "regulation"
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"` // "create", "update"
	Changes    string    `json:"changes,omitempty"` // JSON: {field: {from, to}}
	CreatedAt  time.Time `json:"created_at"`
}

// IngestRun is the persisted audit record of one pipeline run.
type IngestRun struct {
	ID                   string        `json:"id"`
	DocumentID           string        `json:"document_id"`
	Filename             string        `json:"filename"`
	Year                 int           `json:"year"`
	Outcome              string        `json:"outcome"` // "success", "partial", "cancelled", "failed"
	LakesProcessed       int           `json:"lakes_processed"`
	RegulationsExtracted int           `json:"regulations_extracted"`
	ReportJSON           string        `json:"report_json,omitempty"`
	Elapsed              time.Duration `json:"elapsed"`
	CreatedAt            time.Time     `json:"created_at"`
}

// Counts summarizes entity totals for status reporting.
type Counts struct {
	WaterBodies int `json:"water_bodies"`
	Species     int `json:"species"`
	Regulations int `json:"regulations"`
	Runs        int `json:"runs"`
}

// Store is the narrow persistence capability the population engine
// needs. Find methods return (nil, nil) when no entity matches.
type Store interface {
	FindWaterBodyByName(ctx context.Context, normalizedName, state string) (*WaterBody, error)
	CreateWaterBody(ctx context.Context, wb *WaterBody) error

	FindSpeciesByName(ctx context.Context, normalizedName string) (*Species, error)
	CreateSpecies(ctx context.Context, sp *Species) error

	GetRegulation(ctx context.Context, waterBodyID, speciesID string, year int) (*Regulation, error)
	// UpsertRegulation inserts or updates by the (water body, species,
	// year) key and reports whether a new row was created.
	UpsertRegulation(ctx context.Context, reg *Regulation) (created bool, err error)

	AppendAudit(ctx context.Context, entry *AuditEntry) error

	RecordRun(ctx context.Context, run *IngestRun) error
	RecentRuns(ctx context.Context, limit int) ([]IngestRun, error)
	Counts(ctx context.Context) (Counts, error)

	Close() error
}
