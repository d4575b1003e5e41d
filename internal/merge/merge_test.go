package merge

import (
	"strings"
	"testing"

	"github.com/fisheries-data/creel/internal/regs"
)

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func TestMergeDisjointChunks(t *testing.T) {
	results := []regs.ExtractionResult{
		{
			Success:              true,
			LakesProcessed:       1,
			RegulationsExtracted: 1,
			Regulations: []regs.ExtractedRegulation{{
				WaterBody:   "Clear Lake",
				Locality:    "Itasca",
				Confidence:  0.9,
				SourceChunk: 0,
				Rules:       []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(4)}},
			}},
		},
		{
			Success:              true,
			LakesProcessed:       1,
			RegulationsExtracted: 1,
			Regulations: []regs.ExtractedRegulation{{
				WaterBody:   "Mud Lake",
				Locality:    "Cass",
				Confidence:  0.6,
				SourceChunk: 1,
				Rules:       []regs.SpeciesRule{{Species: "Sunfish", Kind: regs.KindDailyLimit, DailyLimit: intp(10)}},
			}},
		},
	}

	merged := Merge(results)
	if !merged.Success {
		t.Error("merged result should be successful")
	}
	if len(merged.Regulations) != 2 {
		t.Fatalf("expected 2 regulations, got %d", len(merged.Regulations))
	}
	if merged.LakesProcessed != 2 {
		t.Errorf("LakesProcessed = %d, want 2", merged.LakesProcessed)
	}
	if merged.RegulationsExtracted != 2 {
		t.Errorf("RegulationsExtracted = %d, want 2", merged.RegulationsExtracted)
	}
	// First-seen order is preserved.
	if merged.Regulations[0].WaterBody != "Clear Lake" {
		t.Errorf("order not preserved: %q first", merged.Regulations[0].WaterBody)
	}
}

func TestMergeDedupAcrossChunks(t *testing.T) {
	// The same lake straddles a chunk boundary with different species.
	results := []regs.ExtractionResult{
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody:  "Clear Lake",
			Locality:   "County X",
			Confidence: 0.9,
			Rules:      []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(2)}},
		}}},
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody:  "CLEAR LAKE",
			Locality:   "County X",
			Confidence: 0.7,
			Rules:      []regs.SpeciesRule{{Species: "Northern Pike", Kind: regs.KindCatchAndRelease, CatchAndRelease: true}},
		}}},
	}

	merged := Merge(results)
	if len(merged.Regulations) != 1 {
		t.Fatalf("expected 1 deduplicated regulation, got %d", len(merged.Regulations))
	}
	reg := merged.Regulations[0]
	if len(reg.Rules) != 2 {
		t.Fatalf("expected 2 combined rules, got %d", len(reg.Rules))
	}
	want := (0.9 + 0.7) / 2
	if reg.Confidence != want {
		t.Errorf("confidence = %v, want mean %v", reg.Confidence, want)
	}
}

func TestMergeConflictHigherConfidenceWins(t *testing.T) {
	lowFirst := []regs.ExtractionResult{
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Clear Lake", Locality: "County X", Confidence: 0.5, SourceChunk: 0,
			Rules: []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(6)}},
		}}},
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Clear Lake", Locality: "County X", Confidence: 0.9, SourceChunk: 1,
			Rules: []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(2)}},
		}}},
	}

	merged := Merge(lowFirst)
	if len(merged.Regulations) != 1 || len(merged.Regulations[0].Rules) != 1 {
		t.Fatalf("expected 1 regulation with 1 rule, got %+v", merged.Regulations)
	}
	if got := *merged.Regulations[0].Rules[0].DailyLimit; got != 2 {
		t.Errorf("daily limit = %d, want 2 (higher confidence source)", got)
	}
	if len(merged.Warnings) == 0 {
		t.Error("conflict resolution must be recorded as a warning")
	}

	// Same conflict, winner arrives first: incoming loser is dropped.
	highFirst := []regs.ExtractionResult{lowFirst[1], lowFirst[0]}
	merged = Merge(highFirst)
	if got := *merged.Regulations[0].Rules[0].DailyLimit; got != 2 {
		t.Errorf("daily limit = %d, want 2 regardless of arrival order", got)
	}
	if len(merged.Warnings) == 0 {
		t.Error("dropped conflicting rule must be recorded as a warning")
	}
}

func TestMergeLeavesInputsUntouched(t *testing.T) {
	low := regs.ExtractionResult{Success: true, Regulations: []regs.ExtractedRegulation{{
		WaterBody: "Clear Lake", Locality: "County X", Confidence: 0.5, SourceChunk: 0,
		Rules: []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(6)}},
	}}}
	high := regs.ExtractionResult{Success: true, Regulations: []regs.ExtractedRegulation{{
		WaterBody: "Clear Lake", Locality: "County X", Confidence: 0.9, SourceChunk: 1,
		Rules: []regs.SpeciesRule{{Species: "Walleye", Kind: regs.KindDailyLimit, DailyLimit: intp(2)}},
	}}}

	first := Merge([]regs.ExtractionResult{low, high})

	if got := *low.Regulations[0].Rules[0].DailyLimit; got != 6 {
		t.Fatalf("merge wrote through to its input: DailyLimit = %d, want 6", got)
	}
	if got := low.Regulations[0].Confidence; got != 0.5 {
		t.Errorf("input confidence changed to %v", got)
	}

	// The same inputs merge identically a second time.
	second := Merge([]regs.ExtractionResult{low, high})
	if *second.Regulations[0].Rules[0].DailyLimit != *first.Regulations[0].Rules[0].DailyLimit {
		t.Error("second merge of the same inputs diverged")
	}
	if len(second.Warnings) != len(first.Warnings) {
		t.Errorf("warnings diverged on re-merge: %v vs %v", first.Warnings, second.Warnings)
	}
}

func TestMergeNonConflictingSameSpecies(t *testing.T) {
	// Same species, different aspects: both rules are kept.
	results := []regs.ExtractionResult{
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Bass Lake", Locality: "Hubbard", Confidence: 0.8,
			Rules: []regs.SpeciesRule{{Species: "Largemouth Bass", Kind: regs.KindDailyLimit, DailyLimit: intp(4)}},
		}}},
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Bass Lake", Locality: "Hubbard", Confidence: 0.8,
			Rules: []regs.SpeciesRule{{Species: "Largemouth Bass", Kind: regs.KindSizeLimit, MinimumSize: floatp(14)}},
		}}},
	}

	merged := Merge(results)
	if len(merged.Regulations[0].Rules) != 2 {
		t.Errorf("expected both non-conflicting rules kept, got %d", len(merged.Regulations[0].Rules))
	}
	if len(merged.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", merged.Warnings)
	}
}

func TestMergePropagatesFlags(t *testing.T) {
	results := []regs.ExtractionResult{
		{Success: true, Cancelled: true, Warnings: []string{"stopped early"}},
		{Success: false, Error: "chunk 2 exploded"},
	}

	merged := Merge(results)
	if !merged.Cancelled {
		t.Error("Cancelled should propagate")
	}
	if merged.Success {
		t.Error("a failed chunk should mark the merged result unsuccessful")
	}
	found := false
	for _, w := range merged.Warnings {
		if strings.Contains(w, "chunk 2 exploded") {
			found = true
		}
	}
	if !found {
		t.Errorf("chunk error should surface in warnings: %v", merged.Warnings)
	}
}

func TestMergeExperimentalAndNotes(t *testing.T) {
	results := []regs.ExtractionResult{
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Red Lake", Locality: "Beltrami", Confidence: 0.8, GeneralNotes: "Border water.",
		}}},
		{Success: true, Regulations: []regs.ExtractedRegulation{{
			WaterBody: "Red Lake", Locality: "Beltrami", Confidence: 0.8, Experimental: true, GeneralNotes: "Experimental regulations in effect.",
		}}},
	}

	merged := Merge(results)
	reg := merged.Regulations[0]
	if !reg.Experimental {
		t.Error("experimental flag should propagate")
	}
	if !strings.Contains(reg.GeneralNotes, "Border water.") ||
		!strings.Contains(reg.GeneralNotes, "Experimental regulations in effect.") {
		t.Errorf("general notes not combined: %q", reg.GeneralNotes)
	}
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil)
	if !merged.Success {
		t.Error("empty merge should be successful")
	}
	if len(merged.Regulations) != 0 {
		t.Errorf("expected no regulations, got %d", len(merged.Regulations))
	}
}
