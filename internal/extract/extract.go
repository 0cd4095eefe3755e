// Package extract turns uploaded contract documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoText          = errors.New("no extractable text")
	ErrTooLarge        = errors.New("decoded content exceeds size limit")
)

// DefaultMaxDecodedSize bounds the decompressed content Extract will read
// from a single document.
const DefaultMaxDecodedSize int64 = 100 << 20

// ExtractionError reports a document that could not be converted to text.
// The classifier is never reached for such a document.
type ExtractionError struct {
	Filename string
	Format   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s (%s): %v", e.Filename, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type extractorFunc func(data []byte, limit int64) (string, error)

var extractors = map[string]extractorFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".doc":  extractDOC,
	".html": extractHTML,
	".htm":  extractHTML,
	".txt":  extractPlain,
}

// Extractor converts documents to text, refusing any whose decompressed
// content grows past MaxDecoded bytes.
type Extractor struct {
	MaxDecoded int64
}

// NewExtractor returns an Extractor with the given decode limit. A
// non-positive limit selects DefaultMaxDecodedSize.
func NewExtractor(maxDecoded int64) *Extractor {
	if maxDecoded <= 0 {
		maxDecoded = DefaultMaxDecodedSize
	}
	return &Extractor{MaxDecoded: maxDecoded}
}

var defaultExtractor = NewExtractor(DefaultMaxDecodedSize)

// Extract returns the text of a document using DefaultMaxDecodedSize.
func Extract(filename string, data []byte) (string, error) {
	return defaultExtractor.Extract(filename, data)
}

// Extract returns the text of a document, choosing the parser from the
// file extension.
func (e *Extractor) Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", &ExtractionError{Filename: filename, Format: ext, Err: ErrUnsupportedType}
	}
	limit := e.MaxDecoded
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}
	text, err := fn(data, limit)
	if err != nil {
		return "", &ExtractionError{Filename: filename, Format: strings.TrimPrefix(ext, "."), Err: err}
	}
	return text, nil
}

// Supported reports whether Extract understands the extension of filename.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions lists the extensions Extract understands, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPlain(data []byte, limit int64) (string, error) {
	if int64(len(data)) > limit {
		return "", ErrTooLarge
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return string(data), nil
}

// limitedReader fails with ErrTooLarge once more than n bytes have been
// read through it. The budget carries over when r is swapped.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitedReader) exceeded() bool {
	return l.n < 0
}
