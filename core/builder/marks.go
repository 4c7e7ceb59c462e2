package builder

import "github.com/FocuswithJustin/enriched/core/spans"

// markKind identifies an open mark. Most marks turn into the span kind of
// the same name; markNewline and markAlignment are bookkeeping.
type markKind int

const (
	markNewline markKind = iota
	markAlignment
	markBold
	markItalic
	markUnderline
	markStrikethrough
	markInlineCode
	markLink
	markMention
	markColor
	markHeading
	markList
	markChecklist
	markBlockquote
	markCodeBlock
)

// mark is an open element awaiting its end event. It carries the data
// captured at open time.
type mark struct {
	kind  markKind
	start int

	// markNewline
	newlines int
	aligned  bool

	// markAlignment
	alignment string

	// markHeading
	level int

	// markList: the list state at the time the item opened
	ordered bool
	index   int

	// markChecklist
	checked bool

	// markLink; hasHref distinguishes a missing href from an empty one
	href    string
	hasHref bool

	// markMention
	text      string
	hasText   bool
	indicator string
	extra     map[string]string

	// markColor
	color string
}

// category reports how an open mark is closed when the stream ends.
func (m mark) category() spans.Category {
	switch m.kind {
	case markHeading, markList, markChecklist:
		return spans.CategoryParagraph
	case markBlockquote, markCodeBlock:
		return spans.CategoryBlock
	case markNewline, markAlignment:
		return spans.CategoryAnchor
	default:
		return spans.CategoryInline
	}
}

// markStack is the open-mark stack of one conversion.
type markStack []mark

func (s *markStack) push(m mark) {
	*s = append(*s, m)
}

// last returns the index of the most recent mark matching pred, or -1.
func (s markStack) last(pred func(mark) bool) int {
	for i := len(s) - 1; i >= 0; i-- {
		if pred(s[i]) {
			return i
		}
	}
	return -1
}

// lastOf returns the index of the most recent mark of kind k, or -1.
func (s markStack) lastOf(k markKind) int {
	return s.last(func(m mark) bool { return m.kind == k })
}

// remove deletes the mark at index i and returns it.
func (s *markStack) remove(i int) mark {
	m := (*s)[i]
	*s = append((*s)[:i], (*s)[i+1:]...)
	return m
}
