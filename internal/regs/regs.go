// Package regs defines the data model for the regulation extraction
// pipeline: document chunks, parsed lake entries, extracted regulations
// and the result types each stage produces.
package regs

import "time"

// RegulationKind classifies a single species rule.
type RegulationKind string

const (
	KindDailyLimit      RegulationKind = "daily_limit"
	KindPossessionLimit RegulationKind = "possession_limit"
	KindSizeLimit       RegulationKind = "size_limit"
	KindProtectedSlot   RegulationKind = "protected_slot"
	KindCatchAndRelease RegulationKind = "catch_and_release"
	KindSeasonal        RegulationKind = "seasonal"
	KindCombined        RegulationKind = "combined"
)

// ValidKind reports whether k is one of the recognized regulation kinds.
func ValidKind(k RegulationKind) bool {
	switch k {
	case KindDailyLimit, KindPossessionLimit, KindSizeLimit,
		KindProtectedSlot, KindCatchAndRelease, KindSeasonal, KindCombined:
		return true
	}
	return false
}

// DocumentChunk is a page-bounded sub-document produced by the splitter.
// Page numbers are 1-based and the range is inclusive.
type DocumentChunk struct {
	Index     int    `json:"index"`
	Data      []byte `json:"-"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Size      int    `json:"size"`
}

// SplitResult is the output of the chunk splitter.
type SplitResult struct {
	Required   bool            `json:"required"`
	Chunks     []DocumentChunk `json:"chunks"`
	TotalPages int             `json:"total_pages"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// TextChunk is the plain-text rendering of one DocumentChunk.
// Page estimates are derived from character density, not exact.
type TextChunk struct {
	Index                   int    `json:"index"`
	Text                    string `json:"text"`
	ContainsRelevantContent bool   `json:"contains_relevant_content"`
	PageStart               int    `json:"page_start"`
	PageEnd                 int    `json:"page_end"`
}

// LakeEntry is one water body's regulation text as segmented by the
// entry parser, before AI structuring. Locality may be empty when the
// header carried no parenthesized county.
type LakeEntry struct {
	Name     string `json:"name"`
	Locality string `json:"locality,omitempty"`
	RawText  string `json:"raw_text"`
}

// SpeciesRule is one species' regulation within a water body.
// Numeric fields are pointers so "not stated" is distinguishable
// from zero.
type SpeciesRule struct {
	Species         string         `json:"species"`
	Kind            RegulationKind `json:"kind"`
	DailyLimit      *int           `json:"daily_limit,omitempty"`
	PossessionLimit *int           `json:"possession_limit,omitempty"`
	MinimumSize     *float64       `json:"minimum_size,omitempty"`
	MaximumSize     *float64       `json:"maximum_size,omitempty"`
	ProtectedSlot   string         `json:"protected_slot,omitempty"`
	SeasonInfo      string         `json:"season_info,omitempty"`
	CatchAndRelease bool           `json:"catch_and_release,omitempty"`
	Notes           string         `json:"notes,omitempty"`
}

// ExtractedRegulation is the AI-structured form of one lake entry.
// Immutable once produced; ownership passes to the merge engine.
type ExtractedRegulation struct {
	WaterBody    string        `json:"water_body"`
	Locality     string        `json:"locality,omitempty"`
	Rules        []SpeciesRule `json:"rules"`
	GeneralNotes string        `json:"general_notes,omitempty"`
	Experimental bool          `json:"experimental,omitempty"`
	Confidence   float64       `json:"confidence"`
	SourceChunk  int           `json:"source_chunk"`
}

// ExtractionResult is the outcome of extracting one chunk (or one whole
// document in streaming mode). Per-entry failures surface as warnings,
// never as a failed result.
type ExtractionResult struct {
	Success              bool                  `json:"success"`
	Regulations          []ExtractedRegulation `json:"regulations"`
	Error                string                `json:"error,omitempty"`
	LakesProcessed       int                   `json:"lakes_processed"`
	RegulationsExtracted int                   `json:"regulations_extracted"`
	Elapsed              time.Duration         `json:"elapsed"`
	Warnings             []string              `json:"warnings,omitempty"`
	Cancelled            bool                  `json:"cancelled,omitempty"`
}

// MergedExtractionResult is the cross-chunk union of extraction results,
// deduplicated by normalized (water body, locality).
type MergedExtractionResult struct {
	Success              bool                  `json:"success"`
	Regulations          []ExtractedRegulation `json:"regulations"`
	LakesProcessed       int                   `json:"lakes_processed"`
	RegulationsExtracted int                   `json:"regulations_extracted"`
	Elapsed              time.Duration         `json:"elapsed"`
	Warnings             []string              `json:"warnings,omitempty"`
	Cancelled            bool                  `json:"cancelled,omitempty"`
}

// ValidationResult is the outcome of cleaning one ExtractedRegulation.
type ValidationResult struct {
	IsValid  bool                `json:"is_valid"`
	Cleaned  ExtractedRegulation `json:"cleaned"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

// PopulationResult is the terminal artifact of a pipeline run, persisted
// as an audit record by the store.
type PopulationResult struct {
	WaterBodiesCreated int           `json:"water_bodies_created"`
	WaterBodiesUpdated int           `json:"water_bodies_updated"`
	SpeciesCreated     int           `json:"species_created"`
	RegulationsCreated int           `json:"regulations_created"`
	RegulationsUpdated int           `json:"regulations_updated"`
	Warnings           []string      `json:"warnings,omitempty"`
	Errors             []string      `json:"errors,omitempty"`
	Success            bool          `json:"success"`
	Elapsed            time.Duration `json:"elapsed"`
}
