package chunker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// csvSampleRows is the number of leading data rows rendered into the
// synthetic summary chunk.
const csvSampleRows = 5

// extractCSV produces the two-part output for tabular documents: one
// synthetic summary chunk describing the file's shape, followed by the full
// data set in fixed-size row batches. Summary and batches deliberately
// overlap in content so the whole document stays searchable.
func (s Splitter) extractCSV(filename string, data []byte) ([]Chunk, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: reading csv: %w", ErrExtraction, err)
	}

	var headers []string
	var dataRows [][]string
	if len(rows) > 0 {
		headers = rows[0]
		dataRows = rows[1:]
	}

	chunks := []Chunk{{
		Text: csvSummary(filename, headers, dataRows),
		Meta: Meta{ContentType: "csv_summary", Sequence: 0},
	}}

	for start := 0; start < len(dataRows); start += s.CSVBatchRows {
		end := min(start+s.CSVBatchRows, len(dataRows))

		var b strings.Builder
		fmt.Fprintf(&b, "CSV Data (Rows %d to %d):\n\n", start+1, end)
		for i, row := range dataRows[start:end] {
			fmt.Fprintf(&b, "Row %d: %s\n", start+i+1, renderRow(headers, row))
		}

		chunks = append(chunks, Chunk{
			Text: b.String(),
			Meta: Meta{
				ContentType: "csv_data",
				RowRange:    fmt.Sprintf("%d-%d", start+1, end),
				Sequence:    len(chunks),
			},
		})
	}

	return chunks, nil
}

// csvSummary renders the synthetic overview chunk: row/column counts, the
// header list, and the first few rows as "<header>: <value>" pairs.
func csvSummary(filename string, headers []string, dataRows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CSV File: %s\n", filename)
	fmt.Fprintf(&b, "Total rows: %d, Total columns: %d\n\n", len(dataRows), len(headers))

	b.WriteString("Column Headers:\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "- %s\n", h)
	}

	if len(dataRows) > 0 {
		b.WriteString("\nSample Data (first 5 rows):\n")
		sample := min(csvSampleRows, len(dataRows))
		for i := range sample {
			fmt.Fprintf(&b, "Row %d: %s\n", i+1, renderRow(headers, dataRows[i]))
		}
	}

	return b.String()
}

// renderRow formats one data row as comma-separated "<header>: <value>"
// pairs. Cells beyond the header width get a synthetic column name.
func renderRow(headers, row []string) string {
	items := make([]string, 0, len(row))
	for i, cell := range row {
		if i < len(headers) {
			items = append(items, headers[i]+": "+cell)
		} else {
			items = append(items, fmt.Sprintf("Column%d: %s", i+1, cell))
		}
	}
	return strings.Join(items, ", ")
}
