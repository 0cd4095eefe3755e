package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	errLegacyDoc    = errors.New("legacy binary Word documents are not supported, save as .docx")
	errNoDocumentML = errors.New("word/document.xml not found")
	zipMagic        = []byte("PK\x03\x04")
)

// extractDOC accepts .doc uploads that are really OOXML packages.
func extractDOC(data []byte, limit int64) (string, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return "", errLegacyDoc
	}
	return extractDOCX(data, limit)
}

func extractDOCX(data []byte, limit int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid docx package: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		if f.UncompressedSize64 > uint64(limit) {
			return "", ErrTooLarge
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		defer rc.Close()

		lr := &limitedReader{r: rc, n: limit}
		text, err := documentText(lr)
		if lr.exceeded() {
			return "", ErrTooLarge
		}
		return text, err
	}
	return "", errNoDocumentML
}

// documentText walks WordprocessingML and keeps run text, tabs and breaks.
func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
