// Package chunker splits uploaded documents into overlapping text passages
// with positional metadata. A per-format adapter (PDF, DOCX, plain text,
// CSV) extracts the raw text; Split then produces bounded chunks preferring
// natural break points. Chunking is all-or-nothing per document: a failing
// adapter never returns a truncated chunk list.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned when no adapter exists for a file type.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrExtraction marks a malformed document that could not be extracted.
// The underlying cause is always wrapped alongside it.
var ErrExtraction = errors.New("document extraction failed")

// Default chunking parameters, matching the sizes the embedding models
// were tuned against.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultCSVBatchRows = 50
)

// Meta is the positional metadata attached to each produced chunk.
type Meta struct {
	// Page is the 1-based source page for paged formats, 0 otherwise.
	Page int

	// RowRange identifies the source rows for tabular batches (e.g. "1-50").
	RowRange string

	// ContentType classifies the chunk: "text", "docx", "pdf_page",
	// "csv_summary", or "csv_data".
	ContentType string

	// Sequence is the chunk index within its section. For paged formats
	// numbering restarts on each page boundary.
	Sequence int
}

// Chunk is one bounded passage of extracted text. Immutable once produced.
type Chunk struct {
	// Text is the passage content, at most the configured chunk size.
	Text string

	// Meta locates the passage within its source document.
	Meta Meta
}

// Splitter holds the chunking parameters shared by all format adapters.
// The zero value uses the package defaults.
type Splitter struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int

	// Overlap is the number of characters each chunk shares with its
	// predecessor. Must be smaller than ChunkSize.
	Overlap int

	// CSVBatchRows is the number of data rows per tabular batch chunk.
	CSVBatchRows int
}

// normalized returns a copy of s with zero values replaced by defaults and
// an out-of-range overlap clamped, mirroring how the ingestion config
// defends against misconfiguration.
func (s Splitter) normalized() Splitter {
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.Overlap < 0 {
		s.Overlap = 0
	}
	if s.Overlap >= s.ChunkSize {
		s.Overlap = s.ChunkSize / 10
	}
	if s.CSVBatchRows <= 0 {
		s.CSVBatchRows = DefaultCSVBatchRows
	}
	return s
}

// Extract runs the format adapter for fileType over data and returns the
// document's chunks in emission order plus the page count (0 when the
// format has no page structure).
//
// Supported types: pdf, docx, doc, txt, csv. Anything else fails with
// ErrUnsupportedFormat; a malformed file fails with ErrExtraction wrapping
// the cause.
func (s Splitter) Extract(filename, fileType string, data []byte) ([]Chunk, int, error) {
	p := s.normalized()
	switch strings.ToLower(fileType) {
	case "pdf":
		return p.extractPDF(data)
	case "docx", "doc":
		chunks, err := p.extractDOCX(data)
		return chunks, 0, err
	case "txt":
		return p.flatChunks(string(data), "text"), 0, nil
	case "csv":
		chunks, err := p.extractCSV(filename, data)
		return chunks, 0, err
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}
}

// flatChunks splits a single unpaged text body into chunks.
func (s Splitter) flatChunks(text, contentType string) []Chunk {
	parts := Split(text, s.ChunkSize, s.Overlap)
	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			Text: part,
			Meta: Meta{ContentType: contentType, Sequence: i},
		})
	}
	return chunks
}

// separators are the break points Split prefers, in priority order:
// paragraph breaks, line breaks, sentence ends, then word boundaries.
// A hard character cut is the final fallback.
var separators = []string{"\n\n", "\n", ". ", " "}

// Split cuts text into ordered chunks of at most chunkSize bytes. Every
// chunk after the first starts overlap bytes before the end of its
// predecessor, nudged forward when that position falls inside a multi-byte
// rune, so chunks jointly cover the text and every boundary lands on a
// rune boundary.
func Split(text string, chunkSize, overlap int) []string {
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 10
	}

	var chunks []string
	start := 0
	for {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}
		cut := breakPoint(text, start, end, overlap)
		chunks = append(chunks, text[start:cut])
		start = cut - overlap
		// The overlap is a byte count, so walking back from the cut can
		// land inside a multi-byte rune. Advance to the next boundary.
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}
}

// breakPoint returns the cut position for the chunk starting at start,
// scanning the window for the last occurrence of the highest-priority
// separator. The cut must land after start+overlap so the splitter always
// makes progress; when no separator qualifies it falls back to a hard cut
// at end.
func breakPoint(text string, start, end, overlap int) int {
	minCut := start + overlap + 1
	window := text[start:end]
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := start + idx + len(sep)
		if cut >= minCut {
			return cut
		}
		// Earlier occurrences are even further left; try the next separator.
	}

	// Hard cut. Back off to a rune boundary so a multi-byte rune is never
	// bisected; if that would undercut the progress floor, move forward
	// past the rune instead.
	cut := end
	for cut > minCut && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if !utf8.RuneStart(text[cut]) {
		for cut = end; cut < len(text) && !utf8.RuneStart(text[cut]); cut++ {
		}
	}
	return cut
}
