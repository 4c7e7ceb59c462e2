// Package tokenizer turns lenient markup text into start-tag, end-tag and
// text events.
//
// The tokenizer never rejects input. Comments, doctypes and processing
// instructions are dropped; a '<' that does not open a well-formed tag is
// passed through as text. Character references are decoded, tag and
// attribute names are lower-cased, and void elements (br, hr, img, content)
// as well as self-closed tags are followed by a synthesized end event.
// Nesting is reported exactly as written; balancing is left to the consumer.
package tokenizer

import (
	"html"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/enriched/core/errors"
)

// Attribute is one name/value pair of a start tag.
type Attribute struct {
	Key   string
	Value string
}

// Attributes are the attributes of a start tag in source order.
type Attributes []Attribute

// Get returns the value of the first attribute named key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Value returns the value of the attribute named key, or "".
func (a Attributes) Value(key string) string {
	v, _ := a.Get(key)
	return v
}

// Handler receives tokenizer events. Returning an error stops tokenization.
type Handler interface {
	StartTag(name string, attrs Attributes) error
	EndTag(name string) error
	Text(text string) error
}

// voidTags never have content; their end event is synthesized.
var voidTags = map[string]bool{
	"br":      true,
	"hr":      true,
	"img":     true,
	"content": true,
}

// markupLexer splits markup into tags and text. Rule order is precedence.
var markupLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `<!--[\s\S]*?-->`},
	{Name: "Decl", Pattern: `<[!?][^>]*>`},
	{Name: "EndTag", Pattern: `</[^>]*>`},
	{Name: "StartTag", Pattern: `<[A-Za-z][A-Za-z0-9-]*(?:[^>"']|"[^"]*"|'[^']*')*>`},
	{Name: "Text", Pattern: `[^<]+`},
	{Name: "Stray", Pattern: `<`},
})

var markupSymbols = markupLexer.Symbols()

// Tokenize feeds the events of markup to h.
func Tokenize(markup string, h Handler) error {
	lex, err := markupLexer.LexString("", markup)
	if err != nil {
		return errors.NewIO("tokenize", "", err)
	}

	var pending strings.Builder
	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		text := html.UnescapeString(pending.String())
		pending.Reset()
		return h.Text(text)
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			return errors.NewIO("tokenize", "", err)
		}
		if tok.EOF() {
			break
		}

		switch tok.Type {
		case markupSymbols["Comment"], markupSymbols["Decl"]:
			continue
		case markupSymbols["Text"], markupSymbols["Stray"]:
			pending.WriteString(tok.Value)
			continue
		}

		if err := flush(); err != nil {
			return err
		}

		switch tok.Type {
		case markupSymbols["StartTag"]:
			name, attrs, selfClosing := parseTag(tok.Value[1 : len(tok.Value)-1])
			if err := h.StartTag(name, attrs); err != nil {
				return err
			}
			if selfClosing || voidTags[name] {
				if err := h.EndTag(name); err != nil {
					return err
				}
			}
		case markupSymbols["EndTag"]:
			name := endTagName(tok.Value)
			if name == "" || voidTags[name] {
				continue
			}
			if err := h.EndTag(name); err != nil {
				return err
			}
		}
	}
	return flush()
}

func endTagName(raw string) string {
	inner := strings.TrimSpace(raw[2 : len(raw)-1])
	if i := strings.IndexAny(inner, " \t\r\n/"); i >= 0 {
		inner = inner[:i]
	}
	return strings.ToLower(inner)
}
