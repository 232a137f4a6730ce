// Package markup turns raw XML bytes into a generic element tree.
//
// The parser is tolerant: it accepts several top-level elements, a UTF-8
// byte order mark, undeclared entities and any charset label known to
// golang.org/x/net/html/charset. Comments, processing instructions and
// whitespace-only text are dropped.
package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var ErrParse = errors.New("markup parse error")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Attr struct {
	Name  string
	Value string
}

// Element is one parsed element. Attrs keep document order.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element

	// Text is the trimmed character data found directly inside the element.
	Text string
}

// Attr returns the value of the named attribute. When an attribute appears
// more than once, the last occurrence wins.
func (e *Element) Attr(name string) (string, bool) {
	for i := len(e.Attrs) - 1; i >= 0; i-- {
		if e.Attrs[i].Name == name {
			return e.Attrs[i].Value, true
		}
	}
	return "", false
}

func (e *Element) HasAttrs() bool {
	return len(e.Attrs) > 0
}

// Parse reads every top-level element from r.
func Parse(r io.Reader) ([]*Element, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markup: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes is Parse for an in-memory document.
func ParseBytes(data []byte) ([]*Element, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var (
		roots []*Element
		stack []*Element
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: qualified(tok.Name)}
			if len(tok.Attr) > 0 {
				el.Attrs = make([]Attr, 0, len(tok.Attr))
				for _, a := range tok.Attr {
					el.Attrs = append(el.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
				}
			}
			if len(stack) == 0 {
				roots = append(roots, el)
			} else {
				top := stack[len(stack)-1]
				top.Children = append(top.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected closing tag </%s>", ErrParse, qualified(tok.Name))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			text := strings.TrimSpace(string(tok))
			if text == "" || len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			if top.Text != "" {
				top.Text += " "
			}
			top.Text += text
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unclosed element <%s>", ErrParse, stack[len(stack)-1].Name)
	}
	return roots, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
