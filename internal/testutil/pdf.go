// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// MultiPagePDF builds a minimal n-page PDF. Each page carries one text
// line naming the page plus padBytes of unique filler in its content
// stream, so tests can control per-page serialized size. Streams are
// written unfiltered and stay that way through a page-extraction round
// trip, keeping sizes predictable.
func MultiPagePDF(t *testing.T, pages, padBytes int) []byte {
	t.Helper()
	if pages < 1 {
		t.Fatalf("MultiPagePDF: pages = %d, want >= 1", pages)
	}

	var buf bytes.Buffer
	var offsets []int

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.7\n")

	// Object layout: 1 catalog, 2 pages node, then per page i an object
	// pair (page 3+2(i-1), content 4+2(i-1)).
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>",
		strings.Join(kids, " "), pages))

	for i := 1; i <= pages; i++ {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >> /Contents %d 0 R >>",
			4+2*(i-1)))

		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Page %d fishing regulations) Tj ET\n", i)
		if padBytes > 0 {
			// Padding unique per page so the optimizer cannot
			// deduplicate content streams across pages.
			unit := fmt.Sprintf("pg%d.", i)
			content += "% " + strings.Repeat(unit, padBytes/len(unit)+1)[:padBytes] + "\n"
		}
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefOffset)

	return buf.Bytes()
}
