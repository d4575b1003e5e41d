// Package segmenter extracts plain text from document chunks and
// classifies them for regulation-relevant content.
package segmenter

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fisheries-data/creel/internal/regs"
)

// DefaultTool is the primary text extraction binary (poppler-utils).
const DefaultTool = "pdftotext"

// avgCharsPerPage drives the character-density page estimate when the
// extracted text carries no page separators.
const avgCharsPerPage = 1800

// DefaultKeywords classify a chunk as regulation-relevant.
var DefaultKeywords = []string{"fishing", "regulation", "limit"}

// Segmenter turns DocumentChunks into TextChunks.
type Segmenter struct {
	tool     string
	keywords []string
	logger   *slog.Logger
}

// New creates a segmenter. Empty tool or keywords fall back to defaults.
func New(tool string, keywords []string, logger *slog.Logger) *Segmenter {
	if tool == "" {
		tool = DefaultTool
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{tool: tool, keywords: keywords, logger: logger}
}

// Extract produces best-effort plain text for a chunk. Extraction
// failure yields an empty, non-relevant TextChunk rather than an error:
// one bad chunk never aborts the document.
func (s *Segmenter) Extract(chunk regs.DocumentChunk) regs.TextChunk {
	tc := regs.TextChunk{
		Index:     chunk.Index,
		PageStart: chunk.PageStart,
		PageEnd:   chunk.PageEnd,
	}

	text, err := s.extractWithTool(chunk.Data)
	if err != nil {
		s.logger.Debug("primary text extraction failed, falling back",
			"chunk", chunk.Index, "tool", s.tool, "err", err)
		text, err = extractWithPdfcpu(chunk)
	}
	if err != nil {
		s.logger.Warn("text extraction failed for chunk",
			"chunk", chunk.Index, "pages", fmt.Sprintf("%d-%d", chunk.PageStart, chunk.PageEnd), "err", err)
		return tc
	}

	tc.Text = text
	tc.ContainsRelevantContent = s.classify(text)
	tc.PageStart, tc.PageEnd = estimatePageSpan(text, chunk)
	return tc
}

// extractWithTool runs the external extraction binary over the chunk.
func (s *Segmenter) extractWithTool(data []byte) (string, error) {
	if _, err := exec.LookPath(s.tool); err != nil {
		return "", fmt.Errorf("%s not available: %w", s.tool, err)
	}

	tmp, err := os.CreateTemp("", "creel-chunk-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	// -layout preserves column structure, "-" writes to stdout.
	cmd := exec.Command(s.tool, "-layout", tmp.Name(), "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w (output: %s)", s.tool, err, stderr.String())
	}
	return out.String(), nil
}

// textShowOps matches text-showing operators in decoded PDF content
// streams: (string) Tj and [(...)...] TJ arrays.
var textShowOps = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*(?:Tj|'|")|\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)

var tjStrings = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// extractWithPdfcpu is the fallback: pull decoded page content streams
// and recover the text-showing operator arguments. Cruder than the
// external tool but dependency-free.
func extractWithPdfcpu(chunk regs.DocumentChunk) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTCONTENT
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(chunk.Data), conf)
	if err != nil {
		return "", fmt.Errorf("failed to read chunk pdf: %w", err)
	}

	var sb strings.Builder
	for p := 1; p <= ctx.PageCount; p++ {
		r, err := pdfcpu.ExtractPageContent(ctx, p)
		if err != nil {
			return "", fmt.Errorf("failed to extract content for page %d: %w", p, err)
		}
		if r == nil {
			sb.WriteString("\n\f")
			continue
		}
		var content bytes.Buffer
		if _, err := content.ReadFrom(r); err != nil {
			return "", fmt.Errorf("failed to read content for page %d: %w", p, err)
		}

		for _, m := range textShowOps.FindAllStringSubmatch(content.String(), -1) {
			if m[1] != "" {
				sb.WriteString(unescapePDFString(m[1]))
				sb.WriteString(" ")
			} else if m[2] != "" {
				for _, inner := range tjStrings.FindAllStringSubmatch(m[2], -1) {
					sb.WriteString(unescapePDFString(inner[1]))
				}
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n\f")
	}

	return sb.String(), nil
}

func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\r`, "", `\t`, " ")
	return r.Replace(s)
}

// classify reports whether the text matches any configured keyword.
// Used downstream as a priority hint only, never a hard filter.
func (s *Segmenter) classify(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// estimatePageSpan estimates the page range the extracted text covers.
// Form feeds from the extraction tool are trusted when they line up with
// the chunk's declared page count; otherwise a character-density
// heuristic bounds the estimate.
func estimatePageSpan(text string, chunk regs.DocumentChunk) (int, int) {
	declared := chunk.PageEnd - chunk.PageStart + 1

	if ff := strings.Count(text, "\f"); ff > 0 && ff <= declared {
		return chunk.PageStart, chunk.PageStart + ff - 1
	}

	est := len(text)/avgCharsPerPage + 1
	if est > declared {
		est = declared
	}
	return chunk.PageStart, chunk.PageStart + est - 1
}
