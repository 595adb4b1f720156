package chunker

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildPDF assembles a minimal uncompressed PDF with one text line per
// page, computing the xref offsets by hand.
func buildPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	n := len(pageTexts)
	fontObj := 3 + 2*n

	kids := make([]string, n)
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
	}
	for i, text := range pageTexts {
		contentObj := 3 + 2*i + 1
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontObj, contentObj))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func Test_ExtractPDF_MultiPage(t *testing.T) {
	t.Parallel()

	data := buildPDF(t, []string{
		"Revenue grew twelve percent in the first quarter.",
		"Gross margin held steady across all regions.",
		"The outlook section projects continued growth.",
	})

	chunks, numPages, err := Splitter{}.Extract("report.pdf", "pdf", data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if numPages != 3 {
		t.Fatalf("want 3 pages, got %d", numPages)
	}
	if len(chunks) < 3 {
		t.Fatalf("want at least one chunk per page, got %d", len(chunks))
	}

	lastPage := 0
	seen := map[int]bool{}
	for i, c := range chunks {
		if c.Meta.ContentType != "pdf_page" {
			t.Errorf("chunk %d: content type %q", i, c.Meta.ContentType)
		}
		if c.Meta.Page < lastPage {
			t.Errorf("chunk %d: page %d emitted after page %d", i, c.Meta.Page, lastPage)
		}
		if c.Meta.Page != lastPage {
			if c.Meta.Sequence != 0 {
				t.Errorf("chunk %d: numbering must restart on page %d, got sequence %d", i, c.Meta.Page, c.Meta.Sequence)
			}
			lastPage = c.Meta.Page
		}
		seen[c.Meta.Page] = true
	}
	for page := 1; page <= 3; page++ {
		if !seen[page] {
			t.Errorf("no chunk emitted for page %d", page)
		}
	}

	all := make([]string, len(chunks))
	for i, c := range chunks {
		all[i] = c.Text
	}
	if joined := strings.Join(all, " "); !strings.Contains(joined, "Gross margin") {
		t.Errorf("page text not recovered: %q", joined)
	}
}

func Test_ExtractPDF_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := Splitter{}.Extract("broken.pdf", "pdf", []byte("%PDF-1.4 garbage"))
	if err == nil {
		t.Fatal("malformed pdf should fail extraction")
	}
}
