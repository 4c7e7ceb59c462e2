// Package encoding provides the markup escaping routines and the structural
// marker characters shared by the builder and the serializer.
package encoding

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Structural marker characters. They occupy buffer positions but are not
// visible content.
const (
	// ZeroWidthSpace pads otherwise empty block spans and marks anchors.
	ZeroWidthSpace = '\u200B'
	// ZeroWidthNonJoiner is skipped on output like ZeroWidthSpace.
	ZeroWidthNonJoiner = '\u200C'
	// ZeroWidthJoiner is skipped on output like ZeroWidthSpace.
	ZeroWidthJoiner = '\u200D'
	// Magic is the placeholder under horizontal rules and content elements.
	Magic = '\uFEFF'
	// ObjectReplacement is the placeholder under images.
	ObjectReplacement = '\uFFFC'
)

const escNBSP = "&nbsp;"

// IsZeroWidth reports whether r is one of the zero-width marker characters
// dropped from serialized text.
func IsZeroWidth(r rune) bool {
	return r == ZeroWidthSpace || r == ZeroWidthJoiner || r == ZeroWidthNonJoiner
}

// WriteText escapes text into b:
//   - zero-width markers are dropped
//   - < > & become entities
//   - a surrogate pair becomes one numeric reference for its code point
//   - anything outside printable ASCII becomes a numeric reference
//   - in a run of spaces every space but the last becomes &nbsp;
func WriteText(b *strings.Builder, text []rune) {
	for i := 0; i < len(text); i++ {
		c := text[i]

		if IsZeroWidth(c) {
			continue
		}

		switch c {
		case '<':
			b.WriteString("&lt;")
			continue
		case '>':
			b.WriteString("&gt;")
			continue
		case '&':
			b.WriteString("&amp;")
			continue
		}

		if utf16.IsSurrogate(c) && c < 0xDC00 && i+1 < len(text) {
			if r := utf16.DecodeRune(c, text[i+1]); r != '\uFFFD' {
				i++
				writeRef(b, r)
				continue
			}
		}

		if c > 0x7E || c < ' ' {
			writeRef(b, c)
			continue
		}

		if c == ' ' {
			for i+1 < len(text) && text[i+1] == ' ' {
				b.WriteString(escNBSP)
				i++
			}
			b.WriteByte(' ')
			continue
		}

		b.WriteRune(c)
	}
}

func writeRef(b *strings.Builder, r rune) {
	b.WriteString("&#")
	b.WriteString(strconv.Itoa(int(r)))
	b.WriteByte(';')
}

// EscapeText returns the escaped form of s. See WriteText.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	WriteText(&b, []rune(s))
	return b.String()
}

// EscapeAttr escapes text for use in a double-quoted attribute value.
// Escapes: & < > "
func EscapeAttr(s string) string {
	if !strings.ContainsAny(s, `&<>"`) {
		return s
	}
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
