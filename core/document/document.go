// Package document provides the annotated text buffer shared by the builder
// and the serializer.
//
// A Document is a sequence of Unicode scalar values plus a set of spans over
// half-open rune ranges. The builder owns a document while it is being
// constructed; afterwards it is read-only by convention.
package document

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/spans"
	"github.com/FocuswithJustin/enriched/core/theme"
)

// Document is an annotated text buffer.
type Document struct {
	text  []rune
	spans []spans.Span

	// Theme is the presentation parameter the document was built with.
	// It never influences parsing or serialization.
	Theme *theme.Theme
}

// New returns a document over text with the given spans.
func New(text string, ss ...spans.Span) *Document {
	d := &Document{text: []rune(text)}
	d.spans = append(d.spans, ss...)
	return d
}

// WithTheme returns a document sharing d's text and spans with a different
// theme. Neither document may be modified afterwards.
func (d *Document) WithTheme(t *theme.Theme) *Document {
	if d.Theme == t {
		return d
	}
	return &Document{text: d.text, spans: d.spans, Theme: t}
}

// Len returns the buffer length in runes.
func (d *Document) Len() int {
	return len(d.text)
}

// Text returns the buffer as a string.
func (d *Document) Text() string {
	return string(d.text)
}

// Runes returns the buffer. The slice must not be modified.
func (d *Document) Runes() []rune {
	return d.text
}

// At returns the rune at offset i.
func (d *Document) At(i int) rune {
	return d.text[i]
}

// Slice returns the runes in [start, end). The slice must not be modified.
func (d *Document) Slice(start, end int) []rune {
	return d.text[start:end]
}

// Spans returns the spans in insertion order. The slice must not be modified.
func (d *Document) Spans() []spans.Span {
	return d.spans
}

// SpansOf returns the spans of the given category in insertion order.
func (d *Document) SpansOf(cat spans.Category) []spans.Span {
	var out []spans.Span
	for _, s := range d.spans {
		if s.Kind.Category() == cat {
			out = append(out, s)
		}
	}
	return out
}

// Append appends runes to the buffer.
func (d *Document) Append(rs ...rune) {
	d.text = append(d.text, rs...)
}

// AppendString appends s to the buffer.
func (d *Document) AppendString(s string) {
	d.text = append(d.text, []rune(s)...)
}

// Last returns the final rune of the buffer, or 0 when it is empty.
func (d *Document) Last() rune {
	if len(d.text) == 0 {
		return 0
	}
	return d.text[len(d.text)-1]
}

// Insert inserts r at offset pos. Spans starting at or after pos move right;
// spans straddling pos grow by one.
func (d *Document) Insert(pos int, r rune) {
	d.text = append(d.text, 0)
	copy(d.text[pos+1:], d.text[pos:])
	d.text[pos] = r
	for i := range d.spans {
		s := &d.spans[i]
		switch {
		case s.Start >= pos:
			s.Start++
			s.End++
		case s.End > pos:
			s.End++
		}
	}
}

// Truncate shortens the buffer to n runes, clamping spans and dropping the
// ones that become empty.
func (d *Document) Truncate(n int) {
	if n >= len(d.text) {
		return
	}
	d.text = d.text[:n]
	kept := d.spans[:0]
	for _, s := range d.spans {
		s.Start = min(s.Start, n)
		s.End = min(s.End, n)
		if s.IsEmpty() && s.Kind != spans.KindZeroWidthAnchor {
			continue
		}
		kept = append(kept, s)
	}
	d.spans = kept
}

// AddSpan attaches s to the document.
func (d *Document) AddSpan(s spans.Span) {
	d.spans = append(d.spans, s)
}

// ReplaceSpan replaces the span at index i of Spans.
func (d *Document) ReplaceSpan(i int, s spans.Span) {
	d.spans[i] = s
}

// SetSpans replaces the span set.
func (d *Document) SetSpans(ss []spans.Span) {
	d.spans = ss
}

// NextTransition returns the first offset in (start, limit] at which the set
// of non-empty spans of category cat covering the offset changes. It returns
// limit when nothing changes before it.
func (d *Document) NextTransition(start, limit int, cat spans.Category) int {
	next := limit
	for _, s := range d.spans {
		if s.Kind.Category() != cat || s.IsEmpty() {
			continue
		}
		if s.Start > start && s.Start < next {
			next = s.Start
		}
		if s.End > start && s.End < next {
			next = s.End
		}
	}
	return next
}

// Covering returns the non-empty spans of category cat that cover offset,
// in insertion order.
func (d *Document) Covering(offset int, cat spans.Category) []spans.Span {
	var out []spans.Span
	for _, s := range d.spans {
		if s.Kind.Category() == cat && s.Covers(offset) {
			out = append(out, s)
		}
	}
	return out
}

// Overlapping returns the non-empty spans of category cat that intersect
// [start, end), in insertion order.
func (d *Document) Overlapping(start, end int, cat spans.Category) []spans.Span {
	var out []spans.Span
	for _, s := range d.spans {
		if s.Kind.Category() != cat || s.IsEmpty() {
			continue
		}
		if s.Start < end && s.End > start {
			out = append(out, s)
		}
	}
	return out
}

// IndexOf returns the offset of the first r in [start, end), or -1.
func (d *Document) IndexOf(r rune, start, end int) int {
	for i := start; i < end; i++ {
		if d.text[i] == r {
			return i
		}
	}
	return -1
}

// Validate checks the range invariants of every span.
func (d *Document) Validate() error {
	n := len(d.text)
	for i, s := range d.spans {
		field := fmt.Sprintf("spans[%d]", i)
		if !s.Kind.IsValid() {
			return errors.NewValidation(field, "unknown kind")
		}
		if s.Start < 0 || s.Start > s.End || s.End > n {
			return errors.NewValidation(field, fmt.Sprintf("range [%d,%d) outside buffer of %d", s.Start, s.End, n))
		}
		switch s.Kind.Category() {
		case spans.CategoryParagraph:
			if s.IsEmpty() {
				return errors.NewValidation(field, "empty "+s.Kind.String())
			}
			for _, r := range d.text[s.Start:s.End] {
				if r == '\n' {
					return errors.NewValidation(field, s.Kind.String()+" crosses a line break")
				}
			}
		case spans.CategoryBlock:
			if s.IsEmpty() {
				return errors.NewValidation(field, "empty "+s.Kind.String())
			}
		}
	}
	return nil
}

// Canonical returns the spans sorted by start ascending, end descending,
// category, kind and attributes. Documents with equal text and canonical
// spans are equal.
func (d *Document) Canonical() []spans.Span {
	out := make([]spans.Span, len(d.spans))
	copy(out, d.spans)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		if ra, rb := categoryRank(a.Kind.Category()), categoryRank(b.Kind.Category()); ra != rb {
			return ra < rb
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return fingerprint(a) < fingerprint(b)
	})
	return out
}

func categoryRank(c spans.Category) int {
	switch c {
	case spans.CategoryBlock:
		return 0
	case spans.CategoryParagraph:
		return 1
	case spans.CategoryInline:
		return 2
	default:
		return 3
	}
}

// fingerprint renders the data fields of a span in a fixed order.
func fingerprint(s spans.Span) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%d|%d|%s|%d|%d|%t|%s|%s",
		s.URL, s.Text, s.Indicator, s.Source, s.Width, s.Height,
		s.Color, s.Level, s.Index, s.Checked, s.ContentType, s.Alignment)
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.Extra[k])
	}
	return b.String()
}

// Equal reports whether two documents have the same text and the same spans
// in canonical order. Themes are ignored.
func Equal(a, b *Document) bool {
	if string(a.text) != string(b.text) {
		return false
	}
	if len(a.spans) != len(b.spans) {
		return false
	}
	ca, cb := a.Canonical(), b.Canonical()
	for i := range ca {
		if ca[i].Kind != cb[i].Kind || ca[i].Start != cb[i].Start || ca[i].End != cb[i].End {
			return false
		}
		if fingerprint(ca[i]) != fingerprint(cb[i]) {
			return false
		}
	}
	return true
}

// UTF16Range converts the rune range of s into UTF-16 code unit offsets,
// the unit editing surfaces on mobile platforms index by.
func (d *Document) UTF16Range(s spans.Span) (start, end int) {
	return d.UTF16Offset(s.Start), d.UTF16Offset(s.End)
}

// UTF16Offset converts a rune offset into a UTF-16 code unit offset.
func (d *Document) UTF16Offset(runeOffset int) int {
	units := 0
	for _, r := range d.text[:runeOffset] {
		units += utf16.RuneLen(r)
	}
	return units
}
