package spans

// Constructors for spans that carry data. Plain kinds are built with New.

// New returns a span of a kind that carries no data.
func New(kind Kind, start, end int) Span {
	return Span{Kind: kind, Start: start, End: end}
}

// NewLink returns a link span.
func NewLink(url string, start, end int) Span {
	return Span{Kind: KindLink, Start: start, End: end, URL: url}
}

// NewMention returns a mention span. extra may be nil.
func NewMention(text, indicator string, extra map[string]string, start, end int) Span {
	return Span{Kind: KindMention, Start: start, End: end, Text: text, Indicator: indicator, Extra: extra}
}

// NewImage returns an image span over its placeholder character.
func NewImage(src string, width, height, start int) Span {
	return Span{Kind: KindImage, Start: start, End: start + 1, Source: src, Width: width, Height: height}
}

// NewColor returns a colour span; hex is "#rrggbb".
func NewColor(hex string, start, end int) Span {
	return Span{Kind: KindColor, Start: start, End: end, Color: hex}
}

// NewHeading returns a heading span of the given level.
func NewHeading(level, start, end int) Span {
	return Span{Kind: KindHeading, Start: start, End: end, Level: level}
}

// NewOrderedListItem returns an ordered list item span.
func NewOrderedListItem(index, start, end int) Span {
	return Span{Kind: KindOrderedListItem, Start: start, End: end, Index: index}
}

// NewChecklist returns a checklist item span.
func NewChecklist(checked bool, start, end int) Span {
	return Span{Kind: KindChecklist, Start: start, End: end, Checked: checked}
}

// NewParagraph returns an aligned paragraph span.
func NewParagraph(alignment string, start, end int) Span {
	return Span{Kind: KindParagraph, Start: start, End: end, Alignment: alignment}
}

// NewContent returns a content span over its placeholder character.
func NewContent(text, contentType, src string, extra map[string]string, start int) Span {
	return Span{
		Kind:        KindContent,
		Start:       start,
		End:         start + 1,
		Text:        text,
		ContentType: contentType,
		Source:      src,
		Extra:       extra,
	}
}
