package builder

import (
	"sort"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/encoding"
	"github.com/FocuswithJustin/enriched/core/spans"
)

// Finish closes the marks still open at the end of the stream, normalizes
// the spans and returns the document. Further calls return the same
// document.
func (b *Builder) Finish() *document.Document {
	if b.finished {
		return b.doc
	}
	b.finished = true

	b.closeOpenMarks()
	b.backOffBlankLines()
	b.splitParagraphSpans()
	b.numberOrderedItems()
	b.placeAnchors()
	b.trimTrailingNewline()
	return b.doc
}

// closeOpenMarks closes every open mark at the current buffer end, innermost
// first. Newline bookkeeping is dropped.
func (b *Builder) closeOpenMarks() {
	for len(b.marks) > 0 {
		i := len(b.marks) - 1
		switch m := b.marks[i]; {
		case m.kind == markNewline:
			b.marks.remove(i)
		case m.kind == markAlignment, m.category() == spans.CategoryInline:
			b.setSpanFromMark(i)
		default:
			b.setParagraphSpanFromMark(i)
		}
	}
}

// backOffBlankLines shrinks paragraph-line spans whose last line is blank
// and drops the ones left empty.
func (b *Builder) backOffBlankLines() {
	text := b.doc.Runes()
	all := b.doc.Spans()
	kept := make([]spans.Span, 0, len(all))
	for _, s := range all {
		if s.Kind.Category() == spans.CategoryParagraph {
			if s.End >= 2 && text[s.End-1] == '\n' && text[s.End-2] == '\n' {
				s.End--
			}
			if s.IsEmpty() {
				continue
			}
		}
		kept = append(kept, s)
	}
	b.doc.SetSpans(kept)
}

// splitParagraphSpans replaces every paragraph-line span that crosses a
// newline with one span per non-empty line it covers. The later lines of a
// list item continue its list: they are numbered by numberOrderedItems, and
// they are dropped where an item nested inside already owns the line.
func (b *Builder) splitParagraphSpans() {
	text := b.doc.Runes()
	all := b.doc.Spans()
	out := make([]spans.Span, 0, len(all))
	owned := make(map[int]bool)
	var continued []spans.Span
	for _, s := range all {
		if s.Kind.Category() != spans.CategoryParagraph || b.doc.IndexOf('\n', s.Start, s.End) < 0 {
			if s.Kind.IsList() {
				owned[s.Start] = true
			}
			out = append(out, s)
			continue
		}
		first := true
		from := s.Start
		for i := s.Start; i <= s.End; i++ {
			if i < s.End && text[i] != '\n' {
				continue
			}
			if i > from {
				piece := s.WithRange(from, i)
				switch {
				case first || !s.Kind.IsList():
					if s.Kind.IsList() {
						owned[from] = true
					}
					out = append(out, piece)
				default:
					piece.Index = 0
					continued = append(continued, piece)
				}
				first = false
			}
			from = i + 1
		}
	}
	for _, piece := range continued {
		if !owned[piece.Start] {
			owned[piece.Start] = true
			out = append(out, piece)
		}
	}
	b.doc.SetSpans(out)
}

// numberOrderedItems numbers ordered items by line. An item continues the
// count of an ordered item on the line above unless it opened a new list;
// any other line restarts the count at 1.
func (b *Builder) numberOrderedItems() {
	text := b.doc.Runes()
	all := b.doc.Spans()
	var items []int
	for i, s := range all {
		if s.Kind == spans.KindOrderedListItem {
			items = append(items, i)
		}
	}
	sort.SliceStable(items, func(x, y int) bool {
		return all[items[x]].Start < all[items[y]].Start
	})

	byLine := make(map[int]int, len(items))
	for _, i := range items {
		s := all[i]
		line := lineStart(text, s.Start)
		index, ok := byLine[line]
		if !ok {
			index = 1
			if s.Index != 1 && line > 0 {
				if prev, ok := byLine[lineStart(text, line-1)]; ok {
					index = prev + 1
				}
			}
			byLine[line] = index
		}
		s.Index = index
		b.doc.ReplaceSpan(i, s)
	}
}

// lineStart returns the offset of the first character of the line holding
// offset.
func lineStart(text []rune, offset int) int {
	for offset > 0 && text[offset-1] != '\n' {
		offset--
	}
	return offset
}

// placeAnchors puts a zero-width space under every anchor that does not
// already start at one.
func (b *Builder) placeAnchors() {
	for i := range b.doc.Spans() {
		s := b.doc.Spans()[i]
		if s.Kind != spans.KindZeroWidthAnchor {
			continue
		}
		if s.Start >= b.doc.Len() || b.doc.At(s.Start) != encoding.ZeroWidthSpace {
			b.doc.Insert(s.Start, encoding.ZeroWidthSpace)
		}
		b.doc.ReplaceSpan(i, s.WithRange(s.Start, s.Start+1))
	}
}

// trimTrailingNewline removes the terminator of the last block.
func (b *Builder) trimTrailingNewline() {
	if n := b.doc.Len(); n > 0 && b.doc.Last() == '\n' {
		b.doc.Truncate(n - 1)
	}
}
