package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads the text-showing operators of every page. Content
// streams are decoded once through the size budget before the
// interpreter sees them.
func extractPDF(data []byte, limit int64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	budget := &limitedReader{n: limit}
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			break
		}
		streams := contentStreams(p.V.Key("Contents"))
		for _, s := range streams {
			if err := drain(budget, s); err != nil {
				return "", err
			}
		}

		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		for _, s := range streams {
			showText(&b, s, fonts)
		}
		b.WriteByte('\n')
		if int64(b.Len()) > limit {
			return "", ErrTooLarge
		}
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// contentStreams flattens a page's /Contents, which may be a single stream
// or an array of them.
func contentStreams(v pdf.Value) []pdf.Value {
	switch v.Kind() {
	case pdf.Stream:
		return []pdf.Value{v}
	case pdf.Array:
		var out []pdf.Value
		for i := 0; i < v.Len(); i++ {
			if s := v.Index(i); s.Kind() == pdf.Stream {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func drain(budget *limitedReader, s pdf.Value) error {
	rc := s.Reader()
	defer rc.Close()
	budget.r = rc
	_, err := io.Copy(io.Discard, budget)
	if budget.exceeded() {
		return ErrTooLarge
	}
	if err != nil {
		return fmt.Errorf("failed to decode content stream: %w", err)
	}
	return nil
}

func showText(b *strings.Builder, s pdf.Value, fonts map[string]*pdf.Font) {
	var enc pdf.TextEncoding
	write := func(raw string) {
		if enc == nil {
			b.WriteString(raw)
			return
		}
		b.WriteString(enc.Decode(raw))
	}

	pdf.Interpret(s, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "Tf":
			enc = nil
			if len(args) == 2 {
				if f, ok := fonts[args[0].Name()]; ok {
					enc = f.Encoder()
				}
			}
		case "T*":
			b.WriteByte('\n')
		case "Td", "TD":
			if len(args) == 2 && args[1].Float64() != 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		case "'", "\"":
			b.WriteByte('\n')
			if len(args) > 0 {
				write(args[len(args)-1].RawString())
			}
		case "Tj":
			if len(args) == 1 {
				write(args[0].RawString())
			}
		case "TJ":
			if len(args) == 1 {
				arr := args[0]
				for i := 0; i < arr.Len(); i++ {
					if x := arr.Index(i); x.Kind() == pdf.String {
						write(x.RawString())
					}
				}
			}
		case "ET":
			b.WriteByte('\n')
		}
	})
}
