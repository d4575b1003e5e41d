// Package parser segments regulation text into per-water-body entries.
//
// The parser is an explicit three-state machine (Searching, InEntry,
// Done) over lines of text. It is a heuristic over a known document
// layout ("special regulations by water body") and will occasionally
// mis-segment; the merge engine's dedup-by-name is the compensating
// control.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/fisheries-data/creel/internal/regs"
)

type state int

const (
	stateSearching state = iota // no open entry
	stateInEntry                // accumulating lines for the current entry
	stateDone                   // end of input reached
)

// headerPattern matches an entry header: an all-caps name token sequence
// followed by a parenthesized locality, with optional trailing text that
// seeds the entry body, e.g.:
//
//	WALLEYE LAKE (Test County) Daily limit 4, minimum size 15 inches.
var headerPattern = regexp.MustCompile(`^\s*([A-Z][A-Z0-9'&.\-]*(?:[ \t]+[A-Z0-9'&.\-]+)*)\s+\(([^)]*)\)\s*(.*)$`)

// noisePatterns drop non-content lines: bare page numbers, running
// headers and footers, page separators.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\d+\s*$`),
	regexp.MustCompile(`(?i)^\s*page\s+\d+(\s+of\s+\d+)?\s*$`),
	regexp.MustCompile(`(?i)^\s*special regulations( by water body)?\s*$`),
	regexp.MustCompile(`(?i)^\s*\(?continued( on next page)?\)?\s*$`),
	regexp.MustCompile(`(?i)^\s*fishing regulations\s+\d{4}\s*$`),
}

// Parser splits segmented text into discrete lake entries.
type Parser struct{}

// New creates an entry parser.
func New() *Parser {
	return &Parser{}
}

// Parse scans text line by line and emits one LakeEntry per detected
// header. Entries with empty raw text are emitted as-is; callers must
// drop them (see DropEmpty) before AI extraction since they carry no
// regulation content.
func (p *Parser) Parse(text string) []regs.LakeEntry {
	var entries []regs.LakeEntry

	st := stateSearching
	var current regs.LakeEntry
	var body []string

	emit := func() {
		current.RawText = strings.TrimSpace(strings.Join(body, "\n"))
		entries = append(entries, current)
		body = body[:0]
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), "\f", "")

		if isNoise(line) {
			continue
		}

		m := headerPattern.FindStringSubmatch(line)

		switch st {
		case stateSearching:
			if m == nil {
				continue
			}
			current = newEntry(m)
			if trailing := strings.TrimSpace(m[3]); trailing != "" {
				body = append(body, trailing)
			}
			st = stateInEntry

		case stateInEntry:
			if m != nil {
				// A new header closes the current entry and opens the next.
				emit()
				current = newEntry(m)
				if trailing := strings.TrimSpace(m[3]); trailing != "" {
					body = append(body, trailing)
				}
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			body = append(body, strings.TrimSpace(line))
		}
	}

	// End of input is the Done transition: close the last open entry.
	if st == stateInEntry {
		emit()
		st = stateDone
	}

	return entries
}

// DropEmpty filters out entries with no regulation text.
func DropEmpty(entries []regs.LakeEntry) []regs.LakeEntry {
	kept := entries[:0:0]
	for _, e := range entries {
		if e.RawText != "" {
			kept = append(kept, e)
		}
	}
	return kept
}

func newEntry(m []string) regs.LakeEntry {
	return regs.LakeEntry{
		Name:     regs.CollapseWhitespace(m[1]),
		Locality: regs.CollapseWhitespace(m[2]),
	}
}

func isNoise(line string) bool {
	for _, re := range noisePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
