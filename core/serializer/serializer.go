// Package serializer renders a document as markup.
//
// Rendering walks three span layers top-down using range boundaries. The
// block pass wraps runs of lines in blockquote and codeblock elements, the
// line pass renders each line as one element built from the merged
// paragraph-line spans covering it, and the inline pass nests inline
// elements around escaped text.
package serializer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/encoding"
	"github.com/FocuswithJustin/enriched/core/spans"
)

// Document envelope.
const (
	Open  = "<" + spans.TagDocument + ">"
	Close = "</" + spans.TagDocument + ">"

	// EmptyMarkup is returned for input that carries no annotations.
	EmptyMarkup = Open + "<p></p>\n" + Close
)

// Serialize renders doc wrapped in the document envelope.
func Serialize(doc *document.Document) string {
	s := &serializer{doc: doc, text: doc.Runes(), all: doc.Spans()}
	s.out.Grow(doc.Len() * 2)
	s.blocks(0, doc.Len())
	return Open + s.out.String() + Close
}

// SerializeWithDefault renders doc, or returns EmptyMarkup when doc is nil.
func SerializeWithDefault(doc *document.Document) string {
	if doc == nil {
		return EmptyMarkup
	}
	return Serialize(doc)
}

// serializer holds the output of one rendering.
type serializer struct {
	doc  *document.Document
	text []rune
	all  []spans.Span
	out  strings.Builder

	// afterBlockOpen is the output length right after the last block open
	// tag was written.
	afterBlockOpen int
}

// covering returns the indexes of the spans of cat covering offset, outer
// elements first: start ascending, end descending, and for equal ranges the
// span added last first, since the builder adds inner elements first.
func (s *serializer) covering(offset int, cat spans.Category) []int {
	var idx []int
	for i, sp := range s.all {
		if sp.Kind.Category() == cat && sp.Covers(offset) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := s.all[idx[a]], s.all[idx[b]]
		if sa.Start != sb.Start {
			return sa.Start < sb.Start
		}
		if sa.End != sb.End {
			return sa.End > sb.End
		}
		return idx[a] > idx[b]
	})
	return idx
}

func (s *serializer) startsAt(offset int, cat spans.Category) bool {
	for _, sp := range s.all {
		if sp.Kind.Category() == cat && !sp.IsEmpty() && sp.Start == offset {
			return true
		}
	}
	return false
}

// stillOpen returns how many entries at the bottom of stack are in active.
func stillOpen(stack, active []int) int {
	keep := 0
	for keep < len(stack) && contains(active, stack[keep]) {
		keep++
	}
	return keep
}

func contains(idx []int, i int) bool {
	for _, j := range idx {
		if j == i {
			return true
		}
	}
	return false
}

// blocks renders [start, end) as a sequence of block elements and plain
// line regions. Blocks open in nesting order and close in reverse.
func (s *serializer) blocks(start, end int) {
	if start == end {
		s.lines(start, end)
		return
	}

	var stack []int
	pos := start
	for {
		var active []int
		if pos < end {
			active = s.covering(pos, spans.CategoryBlock)
		}

		keep := stillOpen(stack, active)
		closed := keep < len(stack)
		for len(stack) > keep {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.closeTag(spans.Lookup(s.all[top]).Tag, true)
		}
		// The newline separating a block from what follows belongs to
		// neither.
		if closed && pos < end && s.text[pos] == '\n' {
			pos++
			continue
		}
		if pos >= end {
			return
		}

		for _, i := range active {
			if contains(stack, i) {
				continue
			}
			s.stripBreakAfterBlockOpen()
			info := spans.Lookup(s.all[i])
			s.openTag(info.Tag, info.AttributesOf(s.all[i]), true)
			s.afterBlockOpen = s.out.Len()
			stack = append(stack, i)
		}

		next := s.doc.NextTransition(pos, end, spans.CategoryBlock)
		regionEnd := next
		if next < end && next > pos && s.text[next-1] == '\n' && s.startsAt(next, spans.CategoryBlock) {
			regionEnd--
		}
		s.lines(pos, regionEnd)
		pos = next
	}
}

// stripBreakAfterBlockOpen removes a line break element written directly
// after a block open tag, so a nested block does not start with a phantom
// blank line.
func (s *serializer) stripBreakAfterBlockOpen() {
	const artifact = "<" + spans.TagBreak + ">\n"
	if s.out.Len() != s.afterBlockOpen+len(artifact) {
		return
	}
	out := s.out.String()
	if !strings.HasSuffix(out, artifact) {
		return
	}
	s.out.Reset()
	s.out.WriteString(out[:len(out)-len(artifact)])
}

// lines renders [start, end) line by line. The end of the region ends a
// line too, so a region ending in a newline has an empty last line.
func (s *serializer) lines(start, end int) {
	list := ""
	closeList := func() {
		if list != "" {
			s.closeTag(list, true)
			list = ""
		}
	}

	for i := start; i <= end; {
		next := s.doc.IndexOf('\n', i, end)
		if next < 0 {
			next = end
		}

		if next == i {
			closeList()
			s.openTag(spans.TagBreak, nil, true)
			i = next + 1
			continue
		}

		line := s.doc.Overlapping(i, next, spans.CategoryParagraph)
		tag, selfClosing, attrs := spans.Merge(line)
		switch {
		case selfClosing:
			closeList()
			s.selfClosingTag(tag, attrs)
			s.out.WriteByte('\n')

		case tag == spans.TagUnordered || tag == spans.TagOrdered:
			if list != tag || (tag == spans.TagOrdered && restartsNumbering(line)) {
				closeList()
				s.openTag(tag, nil, true)
				list = tag
			}
			s.openTag(spans.TagListItem, attrs, false)
			s.inline(i, next)
			s.closeTag(spans.TagListItem, true)

		default:
			closeList()
			s.openTag(tag, attrs, false)
			s.inline(i, next)
			s.closeTag(tag, true)
		}
		i = next + 1
	}
	closeList()
}

// restartsNumbering reports whether an ordered item on the line is numbered
// 1, which needs a fresh list element to survive a rebuild.
func restartsNumbering(line []spans.Span) bool {
	for _, sp := range line {
		if sp.Kind == spans.KindOrderedListItem && sp.Index == 1 {
			return true
		}
	}
	return false
}

// inline renders [start, end) with its inline elements. Elements open
// outermost first and close in reverse; an element ending inside an
// element opened after it closes that one too, which then reopens.
func (s *serializer) inline(start, end int) {
	var stack []int
	for i := start; i < end; {
		next := s.doc.NextTransition(i, end, spans.CategoryInline)
		active := s.covering(i, spans.CategoryInline)

		keep := stillOpen(stack, active)
		for len(stack) > keep {
			s.closeInline(s.all[stack[len(stack)-1]])
			stack = stack[:len(stack)-1]
		}

		textStart := i
		for _, idx := range active {
			if contains(stack, idx) {
				continue
			}
			sp := s.all[idx]
			if sp.Kind == spans.KindImage {
				if sp.Start == i {
					s.writeImage(sp)
					textStart = i + 1
				}
				continue
			}
			s.openInline(sp)
			stack = append(stack, idx)
		}

		if textStart < next {
			encoding.WriteText(&s.out, s.text[textStart:next])
		}
		i = next
	}
	for len(stack) > 0 {
		s.closeInline(s.all[stack[len(stack)-1]])
		stack = stack[:len(stack)-1]
	}
}

func (s *serializer) openInline(sp spans.Span) {
	switch sp.Kind {
	case spans.KindBold, spans.KindItalic, spans.KindUnderline,
		spans.KindStrikethrough, spans.KindInlineCode:
		s.openTag(inlineTag(sp.Kind), nil, false)
	case spans.KindColor:
		s.out.WriteString(`<font color="`)
		s.out.WriteString(encoding.EscapeAttr(sp.Color))
		s.out.WriteString(`">`)
	case spans.KindLink:
		s.out.WriteString(`<a href="`)
		s.out.WriteString(encoding.EscapeAttr(sp.URL))
		s.out.WriteString(`">`)
	case spans.KindMention:
		s.out.WriteString(`<mention text="`)
		s.out.WriteString(encoding.EscapeAttr(sp.Text))
		s.out.WriteString(`" indicator="`)
		s.out.WriteString(encoding.EscapeAttr(sp.Indicator))
		s.out.WriteByte('"')
		s.writeAttributes(sp.Extra)
		s.out.WriteByte('>')
	}
}

func (s *serializer) closeInline(sp spans.Span) {
	if tag := inlineTag(sp.Kind); tag != "" {
		s.closeTag(tag, false)
	}
}

// inlineTag returns the element name of an inline kind.
func inlineTag(k spans.Kind) string {
	switch k {
	case spans.KindBold:
		return spans.TagBold
	case spans.KindItalic:
		return spans.TagItalic
	case spans.KindUnderline:
		return spans.TagUnderline
	case spans.KindStrikethrough:
		return spans.TagStrikethrough
	case spans.KindInlineCode:
		return spans.TagInlineCode
	case spans.KindColor:
		return spans.TagFont
	case spans.KindLink:
		return spans.TagLink
	case spans.KindMention:
		return spans.TagMention
	default:
		return ""
	}
}

func (s *serializer) writeImage(sp spans.Span) {
	s.out.WriteString(`<img src="`)
	s.out.WriteString(encoding.EscapeAttr(sp.Source))
	s.out.WriteString(`" width="`)
	s.out.WriteString(strconv.Itoa(sp.Width))
	s.out.WriteString(`" height="`)
	s.out.WriteString(strconv.Itoa(sp.Height))
	s.out.WriteString(`"/>`)
}

func (s *serializer) openTag(tag string, attrs map[string]string, newline bool) {
	s.out.WriteByte('<')
	s.out.WriteString(tag)
	s.writeAttributes(attrs)
	s.out.WriteByte('>')
	if newline {
		s.out.WriteByte('\n')
	}
}

func (s *serializer) closeTag(tag string, newline bool) {
	s.out.WriteString("</")
	s.out.WriteString(tag)
	s.out.WriteByte('>')
	if newline {
		s.out.WriteByte('\n')
	}
}

func (s *serializer) selfClosingTag(tag string, attrs map[string]string) {
	s.out.WriteByte('<')
	s.out.WriteString(tag)
	s.writeAttributes(attrs)
	s.out.WriteString("/>")
}

// writeAttributes writes attrs in key order.
func (s *serializer) writeAttributes(attrs map[string]string) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.out.WriteByte(' ')
		s.out.WriteString(k)
		s.out.WriteString(`="`)
		s.out.WriteString(encoding.EscapeAttr(attrs[k]))
		s.out.WriteByte('"')
	}
}
