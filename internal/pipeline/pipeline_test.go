package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fisheries-data/creel/internal/config"
	"github.com/fisheries-data/creel/internal/merge"
	"github.com/fisheries-data/creel/internal/providers"
	"github.com/fisheries-data/creel/internal/regs"
	"github.com/fisheries-data/creel/internal/splitter"
	"github.com/fisheries-data/creel/internal/store"
)

const regulationText = `Special Regulations by Water Body

CLEAR LAKE (Itasca) Walleye daily limit 2,
minimum size 15 inches.

MUD LAKE (Cass) Sunfish daily limit 10.`

func newTestPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore, *providers.MockClient) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(
		`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}],"confidence":0.9}`)

	return New(Options{Store: st, Client: mock}), st, mock
}

func TestRunPlainTextBypass(t *testing.T) {
	p, st, _ := newTestPipeline(t)

	var seen []string
	result, err := p.Run(context.Background(), Request{
		Data:        []byte(regulationText),
		Filename:    "regs.txt",
		ContentType: "text/plain",
		DocumentID:  "doc-1",
		OnEntry: func(reg regs.ExtractedRegulation) error {
			seen = append(seen, reg.WaterBody)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Split != nil {
		t.Error("plain text must bypass the splitter")
	}
	if result.Outcome != "success" {
		t.Errorf("outcome = %q, want success", result.Outcome)
	}
	if result.Merged.LakesProcessed != 2 {
		t.Errorf("LakesProcessed = %d, want 2", result.Merged.LakesProcessed)
	}
	if result.Merged.Elapsed <= 0 {
		t.Error("merged result should carry wall-clock extraction time")
	}

	want := []string{"Clear Lake", "Mud Lake"}
	if len(seen) != len(want) {
		t.Fatalf("callback count = %d, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("callback %d = %q, want %q", i, seen[i], want[i])
		}
	}

	if result.Population == nil || result.Population.RegulationsCreated != 2 {
		t.Errorf("population = %+v, want 2 regulations created", result.Population)
	}

	runs, err := st.RecentRuns(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].DocumentID != "doc-1" || runs[0].Outcome != "success" {
		t.Errorf("ingest run not recorded correctly: %+v", runs)
	}
}

func TestRunTxtExtensionBypass(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{
		Data:     []byte(regulationText),
		Filename: "regs.TXT",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Split != nil {
		t.Error(".txt files must bypass the splitter regardless of content type")
	}
}

func TestRunUnprocessablePDF(t *testing.T) {
	p, st, _ := newTestPipeline(t)

	_, err := p.Run(context.Background(), Request{
		Data:        []byte("garbage bytes"),
		Filename:    "broken.pdf",
		ContentType: "application/pdf",
		DocumentID:  "doc-bad",
	})
	if err == nil {
		t.Fatal("unparseable PDF should be a hard failure")
	}
	if !errors.Is(err, splitter.ErrUnprocessable) {
		t.Errorf("error should wrap ErrUnprocessable: %v", err)
	}

	runs, rerr := st.RecentRuns(context.Background(), 1)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if len(runs) != 1 || runs[0].Outcome != "failed" {
		t.Errorf("failed run should still be recorded: %+v", runs)
	}
}

func TestRunReingestIsIdempotent(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()

	req := Request{
		Data:       []byte(regulationText),
		Filename:   "regs.txt",
		DocumentID: "doc-1",
	}

	first, err := p.Run(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Run(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	if first.Population.RegulationsCreated != 2 {
		t.Errorf("first run created %d regulations, want 2", first.Population.RegulationsCreated)
	}
	if second.Population.RegulationsCreated != 0 {
		t.Errorf("second run created %d regulations, want 0", second.Population.RegulationsCreated)
	}
	if second.Population.RegulationsUpdated != 2 {
		t.Errorf("second run updated %d regulations, want 2", second.Population.RegulationsUpdated)
	}

	counts, err := st.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Regulations != 2 || counts.WaterBodies != 2 {
		t.Errorf("re-ingest changed net counts: %+v", counts)
	}
}

func TestRunStreamPersist(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()

	// Each lake is persisted before its entry callback fires, so partial
	// progress is queryable mid-run.
	var midRunCount int
	result, err := p.Run(ctx, Request{
		Data:          []byte(regulationText),
		Filename:      "regs.txt",
		DocumentID:    "doc-1",
		StreamPersist: true,
		OnEntry: func(reg regs.ExtractedRegulation) error {
			if reg.WaterBody == "Clear Lake" {
				counts, err := st.Counts(ctx)
				if err != nil {
					return err
				}
				midRunCount = counts.Regulations
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if midRunCount != 1 {
		t.Errorf("first lake should be persisted when its callback fires, saw %d rows", midRunCount)
	}
	if result.Outcome != "success" {
		t.Errorf("outcome = %q", result.Outcome)
	}

	// The final merged pass upserts over the streamed rows.
	counts, err := st.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Regulations != 2 {
		t.Errorf("regulations = %d, want 2", counts.Regulations)
	}
}

func TestRunCancellation(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := p.Run(ctx, Request{
		Data:     []byte(regulationText),
		Filename: "regs.txt",
		OnEntry: func(reg regs.ExtractedRegulation) error {
			cancel()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("cancellation is a partial result, not an error: %v", err)
	}
	if result.Outcome != "cancelled" {
		t.Errorf("outcome = %q, want cancelled", result.Outcome)
	}
	if len(result.Merged.Regulations) != 1 {
		t.Errorf("expected 1 regulation before cancellation, got %d", len(result.Merged.Regulations))
	}
}

func TestRunWalleyeLakeEndToEnd(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(
		`{"species":[{"name":"Walleye","regulationType":"combined","dailyLimit":4,"minimumSize":"15"}]}`)

	p := New(Options{Store: st, Client: mock})
	ctx := context.Background()

	result, err := p.Run(ctx, Request{
		Data:       []byte("WALLEYE LAKE (Test County) Daily limit 4, minimum size 15 inches."),
		Filename:   "regs.txt",
		DocumentID: "doc-1",
		Year:       2026,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != "success" {
		t.Fatalf("outcome = %q, warnings: %v", result.Outcome, result.Merged.Warnings)
	}

	wb, err := st.FindWaterBodyByName(ctx, "walleye lake", "MN")
	if err != nil || wb == nil {
		t.Fatalf("water body not created: %v %v", wb, err)
	}
	if wb.Name != "Walleye Lake" {
		t.Errorf("water body name = %q, want normalized display form", wb.Name)
	}
	if wb.County != "Test County" {
		t.Errorf("County = %q", wb.County)
	}

	sp, err := st.FindSpeciesByName(ctx, "walleye")
	if err != nil || sp == nil {
		t.Fatalf("species not created: %v %v", sp, err)
	}
	reg, err := st.GetRegulation(ctx, wb.ID, sp.ID, 2026)
	if err != nil || reg == nil {
		t.Fatalf("regulation not created: %v %v", reg, err)
	}
	if reg.DailyLimit == nil || *reg.DailyLimit != 4 {
		t.Errorf("DailyLimit = %v, want 4", reg.DailyLimit)
	}
	if reg.MinimumSize == nil || *reg.MinimumSize != 15 {
		t.Errorf("MinimumSize = %v, want 15", reg.MinimumSize)
	}
	if reg.SourceDocumentID != "doc-1" {
		t.Errorf("SourceDocumentID = %q", reg.SourceDocumentID)
	}
}

func newParallelPipeline(t *testing.T, mock *providers.MockClient, concurrency int) *Pipeline {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Pipeline.ChunkConcurrency = concurrency
	return New(Options{Store: st, Client: mock, Config: cfg})
}

func TestExtractChunksParallelPreservesOrder(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(
		`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}],"confidence":0.9}`)
	p := newParallelPipeline(t, mock, 4)

	headers := []string{"ALPHA LAKE", "BRAVO LAKE", "CHARLIE LAKE", "DELTA LAKE", "ECHO LAKE", "FOXTROT LAKE"}
	chunks := make([]regs.TextChunk, len(headers))
	for i, h := range headers {
		chunks[i] = regs.TextChunk{
			Index:                   i,
			Text:                    h + " (Itasca) Walleye daily limit 2.",
			ContainsRelevantContent: true,
		}
	}

	var seen []string
	results, warnings := p.extractChunks(context.Background(), chunks, "doc-1", 2026, Request{
		OnEntry: func(reg regs.ExtractedRegulation) error {
			seen = append(seen, reg.WaterBody)
			return nil
		},
	})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(results) != len(headers) {
		t.Fatalf("results = %d, want %d", len(results), len(headers))
	}
	for i, res := range results {
		if !res.Success {
			t.Errorf("chunk %d failed: %s", i, res.Error)
		}
	}

	// Chunks complete in arbitrary order under fan-out; delivery
	// must still follow chunk index.
	want := []string{"Alpha Lake", "Bravo Lake", "Charlie Lake", "Delta Lake", "Echo Lake", "Foxtrot Lake"}
	if len(seen) != len(want) {
		t.Fatalf("callback count = %d, want %d: %v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestExtractChunksParallelCancellation(t *testing.T) {
	walleye := json.RawMessage(
		`{"species":[{"name":"Walleye","regulationType":"daily_limit","dailyLimit":2}],"confidence":0.9}`)

	// Every entry but the first blocks until the first delivery has
	// cancelled the run.
	release := make(chan struct{})
	mock := providers.NewMockClient()
	mock.RespondFn = func(req *providers.ChatRequest) (json.RawMessage, error) {
		prompt := req.Messages[len(req.Messages)-1].Content
		if !strings.Contains(prompt, "ALPHA LAKE") {
			<-release
		}
		return walleye, nil
	}
	p := newParallelPipeline(t, mock, 2)

	chunks := []regs.TextChunk{
		{Index: 0, Text: "ALPHA LAKE (Itasca) Walleye daily limit 2.", ContainsRelevantContent: true},
		{Index: 1, Text: "BRAVO LAKE (Cass) Walleye daily limit 2.", ContainsRelevantContent: true},
		{Index: 2, Text: "CHARLIE LAKE (Cass) Walleye daily limit 2.\n\nDELTA LAKE (Cass) Walleye daily limit 2.", ContainsRelevantContent: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	results, _ := p.extractChunks(ctx, chunks, "doc-1", 2026, Request{
		OnEntry: func(reg regs.ExtractedRegulation) error {
			seen = append(seen, reg.WaterBody)
			if reg.WaterBody == "Alpha Lake" {
				cancel()
				close(release)
			}
			return nil
		},
	})

	if len(seen) == 0 || seen[0] != "Alpha Lake" {
		t.Fatalf("first delivery = %v, want Alpha Lake", seen)
	}
	if len(results) != len(chunks) {
		t.Fatalf("results = %d, want %d", len(results), len(chunks))
	}
	merged := merge.Merge(results)
	if !merged.Cancelled {
		t.Error("mid-run cancellation should surface in the merged result")
	}
}

func TestRunGeneratesDocumentID(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{
		Data:     []byte(regulationText),
		Filename: "regs.txt",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(result.DocumentID) == "" {
		t.Error("a document id should be generated when none is supplied")
	}
}
