package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF processes a PDF page by page: each page's text is chunked
// independently so page numbers stay exact, chunk numbering restarts per
// page, and emission order is page-ascending. The page count is returned
// for the document record.
func (s Splitter) extractPDF(data []byte) ([]Chunk, int, error) {
	pages, err := pdfPageTexts(data)
	if err != nil {
		return nil, 0, err
	}

	var chunks []Chunk
	for pageNum, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for i, part := range Split(text, s.ChunkSize, s.Overlap) {
			chunks = append(chunks, Chunk{
				Text: part,
				Meta: Meta{ContentType: "pdf_page", Page: pageNum + 1, Sequence: i},
			})
		}
	}

	return chunks, len(pages), nil
}

// pdfPageTexts extracts the text of every page, index 0 holding page 1.
// pdfcpu works on files and emits one decompressed content stream per page;
// the streams are decoded into plain text by contentStreamText.
func pdfPageTexts(data []byte) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "askdocs-pdf-")
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp dir: %w", ErrExtraction, err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: writing temp pdf: %w", ErrExtraction, err)
	}

	pdfCtx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading pdf: %w", ErrExtraction, err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tmpDir, "pages")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating extraction dir: %w", ErrExtraction, err)
	}
	if err := api.ExtractContentFile(pdfPath, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("%w: extracting pdf content: %w", ErrExtraction, err)
	}

	pages := make([]string, pageCount)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading extraction dir: %w", ErrExtraction, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var pageNum int
		name := e.Name()
		if _, err := fmt.Sscanf(name, "doc_Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(name, "page_%d", &pageNum); err != nil {
				continue
			}
		}
		if pageNum < 1 || pageNum > pageCount {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: reading page %d content: %w", ErrExtraction, pageNum, err)
		}
		pages[pageNum-1] = contentStreamText(raw)
	}

	return pages, nil
}

// contentStreamText recovers readable text from a decompressed PDF content
// stream by collecting the literal strings fed to the text-showing
// operators. Positioning operators (Td, TD, T*, ') become line breaks so
// the splitter sees the page's visual line structure. Hex strings need the
// font's character map and are skipped.
func contentStreamText(stream []byte) string {
	var out strings.Builder
	var op []byte

	flushOp := func() {
		switch string(op) {
		case "Td", "TD", "T*", "'", "ET":
			out.WriteByte('\n')
		}
		op = op[:0]
	}

	for i := 0; i < len(stream); i++ {
		c := stream[i]
		switch {
		case c == '(':
			flushOp()
			lit, next := pdfLiteralString(stream, i)
			out.WriteString(lit)
			i = next
		case c == '%':
			// Comment runs to end of line.
			flushOp()
			for i < len(stream) && stream[i] != '\n' {
				i++
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '[' || c == ']' || c == '<' || c == '>' || c == '/':
			flushOp()
		default:
			op = append(op, c)
		}
	}
	flushOp()

	return out.String()
}

// pdfLiteralString parses a PDF literal string starting at the '(' at
// stream[start], handling balanced parentheses and backslash escapes.
// It returns the decoded text and the index of the closing ')'.
func pdfLiteralString(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 1
	i := start + 1
	for ; i < len(stream) && depth > 0; i++ {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				break
			}
			i++
			switch stream[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r', 'b', 'f':
				// Ignore carriage returns and typographic escapes.
			default:
				b.WriteByte(stream[i])
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i - 1
}
