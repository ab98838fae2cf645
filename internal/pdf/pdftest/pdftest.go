// Package pdftest builds small valid PDF files for tests.
//
// Pages carry no content. Instead every page gets its own media box width,
// Width(doc, page), so a test can tell from the page dimensions of a merged
// file which source page ended up where.
package pdftest

import (
	"bytes"
	"fmt"
)

const Height = 400

// Width is the media box width of page (1-based) of document doc.
func Width(doc, page int) float64 {
	return float64(100*(doc+1) + page)
}

// Generate returns a PDF with the given number of pages for document doc.
func Generate(doc, pages int) []byte {
	var buf bytes.Buffer
	// Object numbers: 1 catalog, 2 page tree, 3.. pages.
	offsets := make([]int, 0, pages+2)

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets = append(offsets, buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [")
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&buf, " %d 0 R", i+3)
	}
	fmt.Fprintf(&buf, " ] /Count %d >>\nendobj\n", pages)

	for i := 0; i < pages; i++ {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf,
			"%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %d] /Resources << >> >>\nendobj\n",
			i+3, Width(doc, i+1), Height)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}
