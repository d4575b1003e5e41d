// Package splitter partitions oversized PDF documents into size-bounded,
// page-aligned chunks for AI-backend size compliance.
package splitter

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/fisheries-data/creel/internal/regs"
)

// ErrUnprocessable is returned when the input is not a parseable PDF.
// Callers must treat the whole document as unprocessable, not retry
// chunk by chunk.
var ErrUnprocessable = errors.New("unprocessable document")

// DefaultMaxChunkKB is the default per-chunk size bound.
const DefaultMaxChunkKB = 4000

// Splitter splits PDF documents on page boundaries.
type Splitter struct {
	maxChunkKB int
	logger     *slog.Logger
}

// New creates a splitter with the given size bound in KB.
func New(maxChunkKB int, logger *slog.Logger) *Splitter {
	if maxChunkKB <= 0 {
		maxChunkKB = DefaultMaxChunkKB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{maxChunkKB: maxChunkKB, logger: logger}
}

// Split partitions doc into chunks no larger than the configured bound.
// Chunk boundaries always fall on page boundaries; page ranges are
// 1-based, inclusive, contiguous and cover the whole document.
func (s *Splitter) Split(doc []byte, filename string) (*regs.SplitResult, error) {
	pageCount, err := api.PageCount(bytes.NewReader(doc), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnprocessable, filename, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: %s: no pages", ErrUnprocessable, filename)
	}

	maxBytes := s.maxChunkKB * 1024

	// Fast path: whole document fits in one request.
	if len(doc) <= maxBytes {
		return &regs.SplitResult{
			Required:   false,
			TotalPages: pageCount,
			Chunks: []regs.DocumentChunk{{
				Index:     0,
				Data:      doc,
				PageStart: 1,
				PageEnd:   pageCount,
				Size:      len(doc),
			}},
		}, nil
	}

	s.logger.Info("splitting document",
		"file", filename, "pages", pageCount, "size", len(doc), "max_kb", s.maxChunkKB)

	result := &regs.SplitResult{Required: true, TotalPages: pageCount}

	start := 1
	for start <= pageCount {
		end, data, err := s.growSpan(doc, start, pageCount, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnprocessable, filename, err)
		}

		if len(data) > maxBytes {
			// A single page exceeding the bound is never split mid-page.
			warn := fmt.Sprintf("page %d alone exceeds %d KB (%d bytes), emitting oversized chunk", start, s.maxChunkKB, len(data))
			s.logger.Warn("oversized page", "file", filename, "page", start, "size", len(data))
			result.Warnings = append(result.Warnings, warn)
		}

		result.Chunks = append(result.Chunks, regs.DocumentChunk{
			Index:     len(result.Chunks),
			Data:      data,
			PageStart: start,
			PageEnd:   end,
			Size:      len(data),
		})
		start = end + 1
	}

	return result, nil
}

// growSpan finds the largest end page such that the serialized span
// [start, end] stays within maxBytes, probing with exponential growth
// then binary search. A single page over the bound is returned as is.
func (s *Splitter) growSpan(doc []byte, start, pageCount, maxBytes int) (int, []byte, error) {
	bestEnd := start
	bestData, err := extractSpan(doc, start, start)
	if err != nil {
		return 0, nil, err
	}
	if len(bestData) > maxBytes {
		return start, bestData, nil
	}

	// Exponential probe for the first overflowing span.
	span := 1
	lo, hi := start, pageCount
	for bestEnd < pageCount {
		span *= 2
		end := start + span - 1
		if end > pageCount {
			end = pageCount
		}
		data, err := extractSpan(doc, start, end)
		if err != nil {
			return 0, nil, err
		}
		if len(data) <= maxBytes {
			bestEnd, bestData = end, data
			if end == pageCount {
				return bestEnd, bestData, nil
			}
			lo = end
			continue
		}
		hi = end
		break
	}
	if bestEnd == pageCount {
		return bestEnd, bestData, nil
	}

	// Binary search between last fit (lo) and first overflow (hi).
	for lo+1 < hi {
		mid := (lo + hi) / 2
		data, err := extractSpan(doc, start, mid)
		if err != nil {
			return 0, nil, err
		}
		if len(data) <= maxBytes {
			bestEnd, bestData = mid, data
			lo = mid
		} else {
			hi = mid
		}
	}

	return bestEnd, bestData, nil
}

// extractSpan serializes the inclusive page range [start, end] of doc
// into a standalone PDF.
func extractSpan(doc []byte, start, end int) ([]byte, error) {
	var buf bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", start, end)}
	if err := api.Trim(bytes.NewReader(doc), &buf, sel, nil); err != nil {
		return nil, fmt.Errorf("failed to extract pages %d-%d: %w", start, end, err)
	}
	return buf.Bytes(), nil
}
