package spans

import "strconv"

// Markup tag names understood by the builder and written by the serializer.
const (
	TagBold          = "b"
	TagItalic        = "i"
	TagUnderline     = "u"
	TagStrikethrough = "s"
	TagStrike        = "strike"
	TagInlineCode    = "code"
	TagFont          = "font"
	TagParagraph     = "p"
	TagBreak         = "br"
	TagRule          = "hr"
	TagBlockquote    = "blockquote"
	TagCodeBlock     = "codeblock"
	TagPre           = "pre"
	TagUnordered     = "ul"
	TagOrdered       = "ol"
	TagListItem      = "li"
	TagLink          = "a"
	TagImage         = "img"
	TagMention       = "mention"
	TagContent       = "content"
	TagChecklist     = "checklist"
	TagDocument      = "html"
)

// HeadingTag returns "h1".."h6" for levels 1..6 and "" otherwise.
func HeadingTag(level int) string {
	if level < 1 || level > 6 {
		return ""
	}
	return "h" + strconv.Itoa(level)
}

// HeadingLevel returns the level of an "h1".."h6" tag name, or 0.
func HeadingLevel(tag string) int {
	if len(tag) != 2 || tag[0] != 'h' || tag[1] < '1' || tag[1] > '6' {
		return 0
	}
	return int(tag[1] - '0')
}

// TagInfo describes how a paragraph-line or block span renders.
type TagInfo struct {
	Tag         string
	SelfClosing bool
	// Attributes extracts the element attributes from a span. May be nil.
	Attributes func(Span) map[string]string
}

// AttributesOf returns the attributes the entry produces for span.
func (ti TagInfo) AttributesOf(s Span) map[string]string {
	if ti.Attributes == nil {
		return nil
	}
	return ti.Attributes(s)
}

// DefaultTagInfo is used for lines with no paragraph-line span and for kinds
// with no registry entry.
var DefaultTagInfo = TagInfo{Tag: TagParagraph}

// registry is read-only after package initialization.
var registry = map[Kind]TagInfo{
	KindUnorderedListItem: {Tag: TagUnordered},
	KindOrderedListItem:   {Tag: TagOrdered},
	KindBlockquote:        {Tag: TagBlockquote},
	KindCodeBlock:         {Tag: TagCodeBlock},
	KindHorizontalRule:    {Tag: TagRule, SelfClosing: true},
	// Tag filled in from the level by Lookup.
	KindHeading: {},
	KindChecklist: {
		Tag: TagChecklist,
		Attributes: func(s Span) map[string]string {
			return map[string]string{"checked": strconv.FormatBool(s.Checked)}
		},
	},
	KindParagraph: {
		Tag: TagParagraph,
		Attributes: func(s Span) map[string]string {
			if s.Alignment == "" {
				return nil
			}
			return map[string]string{"alignment": s.Alignment}
		},
	},
	KindContent: {
		Tag:         TagContent,
		SelfClosing: true,
		Attributes: func(s Span) map[string]string {
			attrs := make(map[string]string, len(s.Extra)+3)
			for k, v := range s.Extra {
				attrs[k] = v
			}
			attrs["text"] = s.Text
			attrs["type"] = s.ContentType
			attrs["src"] = s.Source
			return attrs
		},
	},
}

// Lookup returns the registry entry for a span. Headings resolve their tag
// from the span level. Kinds without an entry get DefaultTagInfo.
func Lookup(s Span) TagInfo {
	info, ok := registry[s.Kind]
	if !ok {
		return DefaultTagInfo
	}
	if s.Kind == KindHeading {
		tag := HeadingTag(s.Level)
		if tag == "" {
			return DefaultTagInfo
		}
		info.Tag = tag
	}
	return info
}

// Merge combines the registry entries of every paragraph-line span covering
// one line. The winning tag is the last one that is neither empty nor "p";
// its self-closing flag wins with it. Attributes of all spans are unioned,
// later spans overwriting earlier keys.
func Merge(line []Span) (tag string, selfClosing bool, attrs map[string]string) {
	tag = DefaultTagInfo.Tag
	for _, s := range line {
		info := Lookup(s)
		if info.Tag != "" && info.Tag != TagParagraph {
			tag = info.Tag
			selfClosing = info.SelfClosing
		}
		for k, v := range info.AttributesOf(s) {
			if attrs == nil {
				attrs = make(map[string]string)
			}
			attrs[k] = v
		}
	}
	return tag, selfClosing, attrs
}
