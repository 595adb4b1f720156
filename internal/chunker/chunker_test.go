package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

// reconstruct joins chunks while dropping the known overlap prefix of every
// chunk after the first.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		if len(c) > overlap {
			b.WriteString(c[overlap:])
		}
	}
	return b.String()
}

func Test_Split_ReconstructsOriginal(t *testing.T) {
	t.Parallel()

	texts := []string{
		"short",
		strings.Repeat("word ", 500),
		strings.Repeat("para one.\n\npara two with more text.\n\n", 60),
		strings.Repeat("x", 5000),
		"Sentence one. Sentence two. Sentence three. " + strings.Repeat("tail ", 300),
	}
	params := []struct{ size, overlap int }{
		{100, 20}, {1000, 200}, {50, 0}, {64, 63},
	}

	for ti, text := range texts {
		for _, p := range params {
			chunks := Split(text, p.size, p.overlap)
			if got := reconstruct(chunks, p.overlap); got != text {
				t.Errorf("text %d size=%d overlap=%d: reconstruction mismatch (got %d bytes, want %d)",
					ti, p.size, p.overlap, len(got), len(text))
			}
		}
	}
}

func Test_Split_ChunkBound(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("alpha beta gamma.\n", 400)
	for _, p := range []struct{ size, overlap int }{{80, 10}, {1000, 200}, {33, 5}} {
		for i, c := range Split(text, p.size, p.overlap) {
			if len(c) > p.size {
				t.Errorf("size=%d overlap=%d: chunk %d has length %d", p.size, p.overlap, i, len(c))
			}
		}
	}
}

func Test_Split_HardCutKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// No ASCII separators anywhere, so every cut is a hard cut landing in
	// the middle of three-byte runes unless adjusted.
	text := strings.Repeat("統計資料の章では前年比較を扱う", 80)
	for _, p := range []struct{ size, overlap int }{{100, 20}, {64, 0}, {97, 13}} {
		for i, c := range Split(text, p.size, p.overlap) {
			if !utf8.ValidString(c) {
				t.Errorf("size=%d overlap=%d: chunk %d is not valid UTF-8: %q", p.size, p.overlap, i, c)
			}
		}
	}
}

func Test_Split_PrefersParagraphBreaks(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 400) + "\n\n" + strings.Repeat("b", 400) + "\n\n" + strings.Repeat("c", 400)
	chunks := Split(text, 500, 50)

	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should cut at the paragraph break, got suffix %q", chunks[0][len(chunks[0])-5:])
	}
}

func Test_Split_EmptyInput(t *testing.T) {
	t.Parallel()

	if got := Split("", 100, 10); got != nil {
		t.Errorf("want nil for empty input, got %v", got)
	}
}

func Test_Split_ShortInputSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := Split("tiny", 100, 10)
	if len(chunks) != 1 || chunks[0] != "tiny" {
		t.Errorf("want single chunk, got %v", chunks)
	}
}

func Test_Extract_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	var s Splitter
	_, _, err := s.Extract("slides.pptx", "pptx", []byte("data"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
}

func Test_Extract_PlainText(t *testing.T) {
	t.Parallel()

	var s Splitter
	chunks, pages, err := s.Extract("notes.txt", "txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("extract txt: %v", err)
	}
	if pages != 0 {
		t.Errorf("txt has no pages, got %d", pages)
	}
	if len(chunks) != 1 || chunks[0].Text != "hello world" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if chunks[0].Meta.ContentType != "text" || chunks[0].Meta.Sequence != 0 {
		t.Errorf("unexpected metadata: %+v", chunks[0].Meta)
	}
}

func Test_ExtractCSV_SummaryAndBatches(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("name,age,city\n")
	for i := 1; i <= 120; i++ {
		fmt.Fprintf(&b, "person%d,%d,town%d\n", i, 20+i%50, i%7)
	}

	s := Splitter{CSVBatchRows: 50}
	chunks, _, err := s.Extract("people.csv", "csv", []byte(b.String()))
	if err != nil {
		t.Fatalf("extract csv: %v", err)
	}

	// 1 summary + batches of 50, 50, 20.
	if len(chunks) != 4 {
		t.Fatalf("want 4 chunks, got %d", len(chunks))
	}
	if chunks[0].Meta.ContentType != "csv_summary" {
		t.Errorf("first chunk should be the summary, got %q", chunks[0].Meta.ContentType)
	}
	if !strings.Contains(chunks[0].Text, "Total rows: 120, Total columns: 3") {
		t.Errorf("summary missing shape line:\n%s", chunks[0].Text)
	}
	if !strings.Contains(chunks[0].Text, "name: person1") {
		t.Errorf("summary missing sample header/value pair:\n%s", chunks[0].Text)
	}

	wantRanges := []string{"1-50", "51-100", "101-120"}
	for i, want := range wantRanges {
		c := chunks[i+1]
		if c.Meta.ContentType != "csv_data" {
			t.Errorf("batch %d content type: %q", i, c.Meta.ContentType)
		}
		if c.Meta.RowRange != want {
			t.Errorf("batch %d row range: want %s, got %s", i, want, c.Meta.RowRange)
		}
	}
	if !strings.Contains(chunks[3].Text, "Row 120: name: person120") {
		t.Errorf("last batch missing final row:\n%s", chunks[3].Text)
	}
}

func Test_ExtractCSV_Malformed(t *testing.T) {
	t.Parallel()

	var s Splitter
	_, _, err := s.Extract("broken.csv", "csv", []byte("a,b\n\"unterminated"))
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("want ErrExtraction for malformed csv, got %v", err)
	}
}

func Test_ExtractDOCX_Malformed(t *testing.T) {
	t.Parallel()

	var s Splitter
	_, _, err := s.Extract("doc.docx", "docx", []byte("not a zip archive"))
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("want ErrExtraction for non-zip docx, got %v", err)
	}
}

func Test_ContentStreamText_DecodesLiterals(t *testing.T) {
	t.Parallel()

	stream := []byte(`BT /F1 12 Tf 72 712 Td (Hello) Tj ( World) Tj 0 -14 Td (Second line \(escaped\)) Tj ET`)
	got := contentStreamText(stream)

	if !strings.Contains(got, "Hello World") {
		t.Errorf("missing joined text on one line:\n%q", got)
	}
	if !strings.Contains(got, "Second line (escaped)") {
		t.Errorf("missing escaped literal:\n%q", got)
	}
	if !strings.Contains(got, "\nSecond line") {
		t.Errorf("Td should introduce a line break:\n%q", got)
	}
}
