// Package extractor adapts lake entries onto the AI backend: one call
// per entry, structured JSON back, with streaming delivery and
// per-entry failure isolation.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fisheries-data/creel/internal/parser"
	"github.com/fisheries-data/creel/internal/providers"
	"github.com/fisheries-data/creel/internal/regs"
)

// EntryCallback is invoked once per extracted entry in parser-emission
// order, before the next entry's extraction begins. A non-nil error is
// recorded as a warning; it does not stop the stream.
type EntryCallback func(reg regs.ExtractedRegulation) error

// Options configures an Extractor.
type Options struct {
	Client      providers.ChatClient
	Model       string // Optional model override
	Policy      ConfidencePolicy
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Extractor sends entry text to the AI backend and parses structured
// regulation records out of the responses.
type Extractor struct {
	client      providers.ChatClient
	model       string
	policy      ConfidencePolicy
	temperature float64
	maxTokens   int
	parser      *parser.Parser
	logger      *slog.Logger
}

// New creates an extractor.
func New(opts Options) *Extractor {
	if opts.Policy == (ConfidencePolicy{}) {
		opts.Policy = DefaultConfidencePolicy()
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		client:      opts.Client,
		model:       opts.Model,
		policy:      opts.Policy,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		parser:      parser.New(),
		logger:      opts.Logger,
	}
}

// Extract parses text into entries and extracts each one. Batch form of
// ExtractStream with no callback.
func (e *Extractor) Extract(ctx context.Context, text string) *regs.ExtractionResult {
	return e.ExtractStream(ctx, text, nil)
}

// ExtractStream parses text into entries and extracts them one at a
// time, delivering each result to onEntry (when non-nil) before the
// next entry begins. Cancellation is observed between entries; the
// partial result accumulated so far is returned with Cancelled set.
// A single failed entry becomes a warning, never a failed result.
func (e *Extractor) ExtractStream(ctx context.Context, text string, onEntry EntryCallback) *regs.ExtractionResult {
	return e.extractStream(ctx, text, 0, onEntry)
}

// ExtractChunk is ExtractStream for one segmented chunk, tagging every
// extracted regulation with the chunk index for the merge step.
func (e *Extractor) ExtractChunk(ctx context.Context, tc regs.TextChunk, onEntry EntryCallback) *regs.ExtractionResult {
	return e.extractStream(ctx, tc.Text, tc.Index, onEntry)
}

func (e *Extractor) extractStream(ctx context.Context, text string, chunkIndex int, onEntry EntryCallback) *regs.ExtractionResult {
	start := time.Now()
	result := &regs.ExtractionResult{}

	entries := parser.DropEmpty(e.parser.Parse(text))
	e.logger.Debug("parsed entries", "chunk", chunkIndex, "count", len(entries))

	for _, entry := range entries {
		// Cancellation propagates between entries, never mid-entry.
		select {
		case <-ctx.Done():
			result.Cancelled = true
			result.Success = true
			result.Elapsed = time.Since(start)
			return result
		default:
		}

		result.LakesProcessed++

		reg, warnings, err := e.extractEntry(ctx, entry, chunkIndex)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("extraction failed for %q: %v", entry.Name, err))
			e.logger.Warn("entry extraction failed", "entry", entry.Name, "err", err)
			continue
		}
		if reg == nil {
			// Backend judged the text to contain no actionable regulation.
			e.logger.Debug("no actionable regulation", "entry", entry.Name)
			continue
		}

		result.Regulations = append(result.Regulations, *reg)
		result.RegulationsExtracted += len(reg.Rules)

		if onEntry != nil {
			if cbErr := onEntry(*reg); cbErr != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("callback failed for %q: %v", reg.WaterBody, cbErr))
			}
		}
	}

	result.Success = true
	result.Elapsed = time.Since(start)
	return result
}

// ExtractOne extracts a single entry's raw text. Returns (nil, nil)
// when the backend judges the text to contain no actionable regulation.
func (e *Extractor) ExtractOne(ctx context.Context, rawText, name, locality string) (*regs.ExtractedRegulation, error) {
	reg, _, err := e.extractEntry(ctx, regs.LakeEntry{Name: name, Locality: locality, RawText: rawText}, 0)
	return reg, err
}

// extractEntry performs one backend call plus a single repair attempt
// when the response fails parsing or schema validation.
func (e *Extractor) extractEntry(ctx context.Context, entry regs.LakeEntry, chunkIndex int) (*regs.ExtractedRegulation, []string, error) {
	req := &providers.ChatRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: entryPrompt(entry.Name, entry.Locality, entry.RawText)},
		},
		ResponseFormat: &providers.ResponseFormat{
			Name:       "regulation",
			JSONSchema: json.RawMessage(regulationSchema),
		},
	}

	raw, err := e.callValidated(ctx, req)
	if err != nil {
		// One repair round: feed the problem back to the backend.
		repair := *req
		repair.Messages = append(repair.Messages,
			providers.Message{Role: "user", Content: repairPrompt(string(raw), err)})
		raw, err = e.callValidated(ctx, &repair)
		if err != nil {
			return nil, nil, err
		}
	}

	reg, warnings, err := decodeResponse(raw, entry.Name, entry.Locality, chunkIndex)
	if err != nil {
		return nil, warnings, err
	}

	if len(reg.Rules) == 0 && reg.GeneralNotes == "" {
		return nil, warnings, nil
	}

	if reg.Confidence == 0 {
		reg.Confidence = e.policy.Score(reg)
	}

	return reg, warnings, nil
}

// callValidated sends the request and validates the parsed JSON against
// the regulation schema. The raw content is returned even on validation
// failure so the repair prompt can reference it.
func (e *Extractor) callValidated(ctx context.Context, req *providers.ChatRequest) (json.RawMessage, error) {
	res, err := e.client.Chat(ctx, req)
	if err != nil {
		var raw json.RawMessage
		if res != nil {
			raw = json.RawMessage(res.Content)
		}
		return raw, fmt.Errorf("backend call failed: %w", err)
	}

	if err := providers.ValidateStructuredJSON(json.RawMessage(regulationSchema), res.ParsedJSON); err != nil {
		return json.RawMessage(res.Content), err
	}
	return res.ParsedJSON, nil
}
