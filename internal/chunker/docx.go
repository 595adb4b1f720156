package chunker

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDOCX pulls the paragraph text out of a DOCX archive and chunks it
// as one flat body. DOCX files are ZIP archives carrying the document body
// in word/document.xml; paragraphs become newline-separated lines so the
// splitter can prefer paragraph breaks.
func (s Splitter) extractDOCX(data []byte) ([]Chunk, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening docx archive: %w", ErrExtraction, err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: opening document.xml: %w", ErrExtraction, err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: reading document.xml: %w", ErrExtraction, err)
		}
		break
	}
	if docXML == nil {
		return nil, fmt.Errorf("%w: archive has no word/document.xml", ErrExtraction)
	}

	text, err := docxParagraphText(docXML)
	if err != nil {
		return nil, err
	}
	return s.flatChunks(text, "docx"), nil
}

// docxParagraphText walks the WordprocessingML token stream collecting the
// text runs (<w:t>) and emitting one line per paragraph (</w:p>).
func docxParagraphText(docXML []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var b strings.Builder
	var para strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parsing document.xml: %w", ErrExtraction, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var run string
				if err := dec.DecodeElement(&run, &t); err != nil {
					return "", fmt.Errorf("%w: parsing text run: %w", ErrExtraction, err)
				}
				para.WriteString(run)
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				if line := strings.TrimSpace(para.String()); line != "" {
					b.WriteString(line)
					b.WriteByte('\n')
				}
				para.Reset()
			}
		}
	}

	return b.String(), nil
}
