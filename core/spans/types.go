package spans

// types.go - Span vocabulary
// Every annotation the document model can carry is one of the kinds below.
// The set is closed: the builder, the registry and the serializer all switch
// over Kind exhaustively.

import (
	"strconv"

	"github.com/FocuswithJustin/enriched/core/errors"
)

// Kind identifies the annotation a span carries.
type Kind int

// Kind constants.
const (
	KindBold Kind = iota
	KindItalic
	KindUnderline
	KindStrikethrough
	KindInlineCode
	KindLink
	KindMention
	KindImage
	KindColor
	KindParagraph
	KindHeading
	KindUnorderedListItem
	KindOrderedListItem
	KindBlockquote
	KindCodeBlock
	KindChecklist
	KindHorizontalRule
	KindContent
	KindZeroWidthAnchor

	kindCount
)

var kindNames = [kindCount]string{
	KindBold:              "bold",
	KindItalic:            "italic",
	KindUnderline:         "underline",
	KindStrikethrough:     "strikethrough",
	KindInlineCode:        "inline_code",
	KindLink:              "link",
	KindMention:           "mention",
	KindImage:             "image",
	KindColor:             "color",
	KindParagraph:         "paragraph",
	KindHeading:           "heading",
	KindUnorderedListItem: "unordered_list_item",
	KindOrderedListItem:   "ordered_list_item",
	KindBlockquote:        "blockquote",
	KindCodeBlock:         "code_block",
	KindChecklist:         "checklist",
	KindHorizontalRule:    "horizontal_rule",
	KindContent:           "content",
	KindZeroWidthAnchor:   "zero_width_anchor",
}

// String returns the stable name of the kind.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// IsValid returns true if the kind is part of the vocabulary.
func (k Kind) IsValid() bool {
	return k >= 0 && k < kindCount
}

// ParseKind returns the kind with the given stable name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return errors.NewUnsupported("span kind", strconv.Quote(string(text))+" is not in the vocabulary")
	}
	*k = parsed
	return nil
}

// Category groups kinds by their composition rules.
type Category int

// Category constants.
const (
	// CategoryInline spans nest and overlap freely within one line.
	CategoryInline Category = iota
	// CategoryParagraph spans apply to exactly one line.
	CategoryParagraph
	// CategoryBlock spans wrap one or more whole lines.
	CategoryBlock
	// CategoryAnchor spans are structural and never render.
	CategoryAnchor
)

// Category returns the composition category of the kind.
func (k Kind) Category() Category {
	switch k {
	case KindBold, KindItalic, KindUnderline, KindStrikethrough, KindInlineCode,
		KindLink, KindMention, KindImage, KindColor:
		return CategoryInline
	case KindParagraph, KindHeading, KindUnorderedListItem, KindOrderedListItem,
		KindChecklist, KindHorizontalRule, KindContent:
		return CategoryParagraph
	case KindBlockquote, KindCodeBlock:
		return CategoryBlock
	default:
		return CategoryAnchor
	}
}

// IsList reports whether the kind is an ordered or unordered list item.
func (k Kind) IsList() bool {
	return k == KindOrderedListItem || k == KindUnorderedListItem
}

// Span is one annotation over the half-open rune range [Start, End).
// Only the fields relevant to Kind are populated.
type Span struct {
	Kind  Kind `json:"kind"`
	Start int  `json:"start"`
	End   int  `json:"end"`

	// URL is the link target (Link).
	URL string `json:"url,omitempty"`

	// Text is the mention label or the content label (Mention, Content).
	Text string `json:"text,omitempty"`

	// Indicator is the mention trigger character, e.g. "@" (Mention).
	Indicator string `json:"indicator,omitempty"`

	// Source is the image or content resource identifier (Image, Content).
	Source string `json:"src,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Color is a "#rrggbb" hex colour (Color).
	Color string `json:"color,omitempty"`

	// Level is the heading level 1..6 (Heading).
	Level int `json:"level,omitempty"`

	// Index is the 1-based ordinal within a run of ordered items (OrderedListItem).
	Index int `json:"index,omitempty"`

	Checked bool `json:"checked,omitempty"`

	// ContentType is the custom content type (Content).
	ContentType string `json:"type,omitempty"`

	// Alignment is "left", "center" or "right" (Paragraph).
	Alignment string `json:"alignment,omitempty"`

	// Extra holds free-form attributes (Mention, Content).
	Extra map[string]string `json:"extra,omitempty"`
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsEmpty reports whether the span covers no characters.
func (s Span) IsEmpty() bool {
	return s.End <= s.Start
}

// Covers reports whether offset lies inside the span.
func (s Span) Covers(offset int) bool {
	return s.Start <= offset && offset < s.End
}

// WithRange returns a copy of the span moved to [start, end).
func (s Span) WithRange(start, end int) Span {
	s.Start = start
	s.End = end
	if s.Extra != nil {
		extra := make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			extra[k] = v
		}
		s.Extra = extra
	}
	return s
}
