// Package pipeline orchestrates the document-to-regulations flow:
// split, segment, parse, stream-extract, merge, validate, populate.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fisheries-data/creel/internal/config"
	"github.com/fisheries-data/creel/internal/extractor"
	"github.com/fisheries-data/creel/internal/merge"
	"github.com/fisheries-data/creel/internal/populate"
	"github.com/fisheries-data/creel/internal/providers"
	"github.com/fisheries-data/creel/internal/regs"
	"github.com/fisheries-data/creel/internal/segmenter"
	"github.com/fisheries-data/creel/internal/splitter"
	"github.com/fisheries-data/creel/internal/store"
)

// Options wires the pipeline's collaborators.
type Options struct {
	Store  store.Store
	Client providers.ChatClient
	Config *config.Config
	Locks  *store.RunLocks // Optional; shared across engines when set
	Logger *slog.Logger
}

// Request describes one document to ingest.
type Request struct {
	Data        []byte
	Filename    string
	ContentType string // "application/pdf" or "text/plain"
	DocumentID  string // Optional; generated when empty
	Year        int    // Optional override of the configured regulation year

	// OnEntry, when set, receives every extracted regulation in source
	// document order before the run completes.
	OnEntry extractor.EntryCallback

	// StreamPersist populates each lake's regulations immediately as
	// extracted, so partial progress survives a mid-document failure.
	// The final merged population pass is idempotent over these writes.
	StreamPersist bool
}

// Result is the outcome of one pipeline run.
type Result struct {
	DocumentID string                      `json:"document_id"`
	Split      *regs.SplitResult           `json:"split,omitempty"`
	Merged     regs.MergedExtractionResult `json:"merged"`
	Population *regs.PopulationResult      `json:"population"`
	Outcome    string                      `json:"outcome"`
}

// Pipeline runs documents through the extraction stages.
type Pipeline struct {
	store       store.Store
	splitter    *splitter.Splitter
	segmenter   *segmenter.Segmenter
	extractor   *extractor.Extractor
	populator   *populate.Engine
	concurrency int
	year        int
	logger      *slog.Logger
}

// New assembles a pipeline from configuration.
func New(opts Options) *Pipeline {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locks := opts.Locks
	if locks == nil {
		locks = store.NewRunLocks()
	}

	return &Pipeline{
		store:    opts.Store,
		splitter: splitter.New(cfg.Pipeline.MaxChunkKB, logger),
		segmenter: segmenter.New(
			cfg.Pipeline.TextExtractTool, cfg.Pipeline.RelevantKeywords, logger),
		extractor: extractor.New(extractor.Options{
			Client: opts.Client,
			Model:  cfg.Provider.Model,
			Policy: extractor.ConfidencePolicy{
				High:   cfg.Confidence.High,
				Medium: cfg.Confidence.Medium,
				Low:    cfg.Confidence.Low,
			},
			Logger: logger,
		}),
		populator: populate.New(populate.Options{
			Store:        opts.Store,
			Locks:        locks,
			DefaultState: cfg.Population.DefaultState,
			Logger:       logger,
		}),
		concurrency: cfg.Pipeline.ChunkConcurrency,
		year:        cfg.Population.RegulationYear,
		logger:      logger,
	}
}

// Run processes one document end to end. Only unprocessable input
// surfaces as an error; every other failure class lands in the result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.New().String()
	}
	year := req.Year
	if year == 0 {
		year = p.year
	}

	result := &Result{DocumentID: documentID}

	textChunks, err := p.segment(req, result)
	if err != nil {
		p.recordRun(ctx, documentID, req.Filename, year, "failed", result, time.Since(start))
		return nil, err
	}

	extractStart := time.Now()
	extractions, cbWarnings := p.extractChunks(ctx, textChunks, documentID, year, req)

	result.Merged = merge.Merge(extractions)
	// Wall-clock extraction time: per-chunk elapsed values overlap
	// under parallel fan-out, so they are never summed.
	result.Merged.Elapsed = time.Since(extractStart)
	result.Merged.Warnings = append(result.Merged.Warnings, cbWarnings...)
	if result.Split != nil {
		result.Merged.Warnings = append(result.Merged.Warnings, result.Split.Warnings...)
	}

	result.Population = p.populator.Populate(ctx, result.Merged, documentID, year)
	result.Outcome = outcome(result)

	p.recordRun(ctx, documentID, req.Filename, year, result.Outcome, result, time.Since(start))

	p.logger.Info("pipeline run complete",
		"document_id", documentID,
		"outcome", result.Outcome,
		"lakes", result.Merged.LakesProcessed,
		"regulations", result.Merged.RegulationsExtracted,
		"elapsed", time.Since(start))

	return result, nil
}

// segment routes the input: plain text bypasses splitting and
// segmentation entirely; PDFs are split then segmented per chunk.
func (p *Pipeline) segment(req Request, result *Result) ([]regs.TextChunk, error) {
	if isPlainText(req.ContentType, req.Filename) {
		return []regs.TextChunk{{
			Index:                   0,
			Text:                    string(req.Data),
			ContainsRelevantContent: true,
			PageStart:               1,
			PageEnd:                 1,
		}}, nil
	}

	split, err := p.splitter.Split(req.Data, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}
	result.Split = split

	chunks := make([]regs.TextChunk, 0, len(split.Chunks))
	for _, chunk := range split.Chunks {
		tc := p.segmenter.Extract(chunk)
		if !tc.ContainsRelevantContent {
			// Priority hint only: the chunk is still parsed.
			p.logger.Debug("chunk matched no relevant keywords", "chunk", tc.Index)
		}
		chunks = append(chunks, tc)
	}
	return chunks, nil
}

// extractChunks runs extraction over all chunks, sequentially by
// default or fanned out up to the configured concurrency cap. Delivery
// to the entry callback is always in ascending chunk order, matching
// parser emission order within each chunk.
func (p *Pipeline) extractChunks(ctx context.Context, chunks []regs.TextChunk, documentID string, year int, req Request) ([]regs.ExtractionResult, []string) {
	var warnMu sync.Mutex
	var warnings []string

	deliver := func(reg regs.ExtractedRegulation) error {
		if req.StreamPersist {
			pr := p.populator.Populate(ctx, regs.MergedExtractionResult{
				Success:     true,
				Regulations: []regs.ExtractedRegulation{reg},
			}, documentID, year)
			for _, e := range pr.Errors {
				warnMu.Lock()
				warnings = append(warnings, fmt.Sprintf("streaming persist: %s", e))
				warnMu.Unlock()
			}
		}
		if req.OnEntry != nil {
			return req.OnEntry(reg)
		}
		return nil
	}

	if p.concurrency <= 1 || len(chunks) == 1 {
		results := make([]regs.ExtractionResult, 0, len(chunks))
		for _, tc := range chunks {
			res := p.extractor.ExtractChunk(ctx, tc, deliver)
			results = append(results, *res)
			if res.Cancelled {
				break
			}
		}
		return results, warnings
	}

	// Parallel fan-out: each chunk streams into its own buffer and a
	// single dispatcher releases buffers strictly in chunk-index order
	// so callback ordering is preserved.
	results := make([]regs.ExtractionResult, len(chunks))
	streams := make([]chan regs.ExtractedRegulation, len(chunks))
	for i := range streams {
		streams[i] = make(chan regs.ExtractedRegulation, 64)
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for _, ch := range streams {
			for reg := range ch {
				if err := deliver(reg); err != nil {
					warnMu.Lock()
					warnings = append(warnings, fmt.Sprintf("callback failed for %q: %v", reg.WaterBody, err))
					warnMu.Unlock()
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, tc := range chunks {
		g.Go(func() error {
			defer close(streams[i])
			res := p.extractor.ExtractChunk(gctx, tc, func(reg regs.ExtractedRegulation) error {
				select {
				case streams[i] <- reg:
				case <-gctx.Done():
				}
				return nil
			})
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		warnMu.Lock()
		warnings = append(warnings, fmt.Sprintf("chunk extraction: %v", err))
		warnMu.Unlock()
	}
	<-dispatchDone

	return results, warnings
}

// recordRun persists the run audit record; failures are logged only.
func (p *Pipeline) recordRun(ctx context.Context, documentID, filename string, year int, outcome string, result *Result, elapsed time.Duration) {
	if p.store == nil {
		return
	}

	run := &store.IngestRun{
		DocumentID: documentID,
		Filename:   filename,
		Year:       year,
		Outcome:    outcome,
		Elapsed:    elapsed,
	}
	run.LakesProcessed = result.Merged.LakesProcessed
	run.RegulationsExtracted = result.Merged.RegulationsExtracted
	if result.Population != nil {
		if b, err := json.Marshal(result.Population); err == nil {
			run.ReportJSON = string(b)
		}
	}

	if err := p.store.RecordRun(ctx, run); err != nil {
		p.logger.Warn("failed to record ingest run", "document_id", documentID, "err", err)
	}
}

func outcome(result *Result) string {
	switch {
	case result.Merged.Cancelled:
		return "cancelled"
	case result.Population != nil && len(result.Population.Errors) > 0:
		return "partial"
	case !result.Merged.Success:
		return "partial"
	default:
		return "success"
	}
}

func isPlainText(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}
