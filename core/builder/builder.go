// Package builder converts markup events into a document.
//
// A Builder is a streaming state machine: it consumes the start-tag,
// end-tag and text events of one markup string, keeps a stack of open
// marks, and turns every mark into a span when its element closes. Call
// Finish once the stream is exhausted to run the normalization post-pass.
//
// A Builder owns its buffer, mark stack and list state. It must not be
// shared between conversions or goroutines.
package builder

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/encoding"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/spans"
	"github.com/FocuswithJustin/enriched/core/theme"
	"github.com/FocuswithJustin/enriched/core/tokenizer"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

// Options configures a Builder. Every field is optional.
type Options struct {
	// Theme is attached to the built document. Defaults to theme.Default().
	Theme *theme.Theme

	// Images is asked to load the source of every img element.
	Images ImageLoader
	// ImageCallbacks is handed to Images with each request.
	ImageCallbacks ImageCallbacks

	// Content receives every content span.
	Content ContentHost

	// Logger receives debug records about ignored markup.
	Logger *slog.Logger
}

// Builder accumulates one document from markup events.
type Builder struct {
	opts Options
	log  *slog.Logger

	doc   *document.Document
	marks markStack

	inOrderedList bool
	orderedIndex  int

	// emptyTag is set when a paragraph-line or block element opens and
	// cleared when characters are appended.
	emptyTag bool

	finished bool
}

// New returns a Builder with an empty buffer.
func New(opts Options) *Builder {
	if opts.Theme == nil {
		opts.Theme = theme.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.GetLogger()
	}
	doc := document.New("")
	doc.Theme = opts.Theme
	return &Builder{opts: opts, log: log, doc: doc}
}

// Build tokenizes markup and returns the finished document.
func Build(markup string, opts Options) (*document.Document, error) {
	b := New(opts)
	if err := tokenizer.Tokenize(markup, b); err != nil {
		return nil, err
	}
	return b.Finish(), nil
}

type startFunc func(b *Builder, attrs tokenizer.Attributes) error

// endFunc reports whether the end event matched an open element.
type endFunc func(b *Builder) bool

var startHandlers = buildStartHandlers()

var endHandlers = buildEndHandlers()

func buildStartHandlers() map[string]startFunc {
	h := map[string]startFunc{
		spans.TagDocument:      noopStart,
		spans.TagBreak:         noopStart,
		spans.TagParagraph:     (*Builder).startParagraph,
		spans.TagUnordered:     (*Builder).startUnorderedList,
		spans.TagOrdered:       (*Builder).startOrderedList,
		spans.TagListItem:      (*Builder).startListItem,
		spans.TagBlockquote:    startBlock(markBlockquote),
		spans.TagCodeBlock:     startBlock(markCodeBlock),
		spans.TagPre:           startBlock(markCodeBlock),
		spans.TagChecklist:     (*Builder).startChecklist,
		spans.TagBold:          startInline(markBold),
		spans.TagItalic:        startInline(markItalic),
		spans.TagUnderline:     startInline(markUnderline),
		spans.TagStrikethrough: startInline(markStrikethrough),
		spans.TagStrike:        startInline(markStrikethrough),
		spans.TagInlineCode:    startInline(markInlineCode),
		spans.TagLink:          (*Builder).startLink,
		spans.TagMention:       (*Builder).startMention,
		spans.TagFont:          (*Builder).startFont,
		spans.TagImage:         (*Builder).addImage,
		spans.TagRule:          (*Builder).addRule,
		spans.TagContent:       (*Builder).addContent,
	}
	for level := 1; level <= 6; level++ {
		h[spans.HeadingTag(level)] = func(b *Builder, attrs tokenizer.Attributes) error {
			return b.startHeading(level, attrs)
		}
	}
	return h
}

func buildEndHandlers() map[string]endFunc {
	h := map[string]endFunc{
		spans.TagDocument:      matched,
		spans.TagBreak:         (*Builder).endBreak,
		spans.TagParagraph:     (*Builder).endBlockElement,
		spans.TagUnordered:     (*Builder).endBlockElement,
		spans.TagOrdered:       (*Builder).endBlockElement,
		spans.TagListItem:      (*Builder).endListItem,
		spans.TagBlockquote:    endBlock(markBlockquote),
		spans.TagCodeBlock:     endBlock(markCodeBlock),
		spans.TagPre:           endBlock(markCodeBlock),
		spans.TagChecklist:     endBlock(markChecklist),
		spans.TagBold:          endInline(markBold),
		spans.TagItalic:        endInline(markItalic),
		spans.TagUnderline:     endInline(markUnderline),
		spans.TagStrikethrough: endInline(markStrikethrough),
		spans.TagStrike:        endInline(markStrikethrough),
		spans.TagInlineCode:    endInline(markInlineCode),
		spans.TagLink:          endInline(markLink),
		spans.TagMention:       endInline(markMention),
		spans.TagFont:          endInline(markColor),
		// Atomic elements finish at their start event.
		spans.TagImage:   matched,
		spans.TagRule:    matched,
		spans.TagContent: matched,
	}
	for level := 1; level <= 6; level++ {
		h[spans.HeadingTag(level)] = func(b *Builder) bool { return b.endHeading(level) }
	}
	return h
}

// StartTag handles an opening tag. Unknown tags are ignored; their content
// flows into the enclosing element.
func (b *Builder) StartTag(name string, attrs tokenizer.Attributes) error {
	h, ok := startHandlers[name]
	if !ok {
		b.log.Debug("ignoring unknown tag", "tag", name)
		return nil
	}
	return h(b, attrs)
}

// EndTag handles a closing tag.
func (b *Builder) EndTag(name string) error {
	h, ok := endHandlers[name]
	if !ok {
		b.log.Debug("ignoring unknown end tag", "tag", name)
		return nil
	}
	if !h(b) {
		b.log.Debug("ignoring unmatched end tag", "tag", name)
	}
	return nil
}

// Text appends character data. Space and newline count as whitespace; a
// whitespace character following whitespace is dropped, looking back into
// the buffer across event boundaries. The start of the buffer and a
// zero-width placeholder count as a line start.
func (b *Builder) Text(s string) error {
	run := make([]rune, 0, len(s))
	for _, c := range s {
		if c != ' ' && c != '\n' {
			run = append(run, c)
			continue
		}
		pred := '\n'
		switch {
		case len(run) > 0:
			pred = run[len(run)-1]
		case b.doc.Len() > 0:
			pred = b.doc.Last()
		}
		if encoding.IsZeroWidth(pred) {
			pred = '\n'
		}
		if pred != ' ' && pred != '\n' {
			run = append(run, ' ')
		}
	}
	if len(run) > 0 {
		b.emptyTag = false
		b.doc.Append(run...)
	}
	return nil
}

// Anchor records a zero-width anchor at the current end of the buffer.
// Finish places a zero-width space under it.
func (b *Builder) Anchor() {
	n := b.doc.Len()
	b.doc.AddSpan(spans.New(spans.KindZeroWidthAnchor, n, n))
}

func noopStart(*Builder, tokenizer.Attributes) error { return nil }

func startInline(k markKind) startFunc {
	return func(b *Builder, _ tokenizer.Attributes) error {
		b.marks.push(mark{kind: k, start: b.doc.Len()})
		return nil
	}
}

func matched(*Builder) bool { return true }

func endInline(k markKind) endFunc {
	return func(b *Builder) bool {
		i := b.marks.lastOf(k)
		if i < 0 {
			return false
		}
		b.setSpanFromMark(i)
		return true
	}
}

func startBlock(k markKind) startFunc {
	return func(b *Builder, attrs tokenizer.Attributes) error {
		b.endOrderedRun()
		b.emptyTag = true
		b.startBlockElement(attrs)
		b.marks.push(mark{kind: k, start: b.doc.Len()})
		return nil
	}
}

func endBlock(k markKind) endFunc {
	return func(b *Builder) bool {
		b.endBlockElement()
		i := b.marks.lastOf(k)
		if i < 0 {
			return false
		}
		b.setParagraphSpanFromMark(i)
		return true
	}
}

func (b *Builder) startParagraph(attrs tokenizer.Attributes) error {
	b.endOrderedRun()
	b.emptyTag = true
	b.startBlockElement(attrs)
	return nil
}

func (b *Builder) startUnorderedList(attrs tokenizer.Attributes) error {
	b.inOrderedList = false
	b.startBlockElement(attrs)
	return nil
}

func (b *Builder) startOrderedList(attrs tokenizer.Attributes) error {
	b.inOrderedList = true
	b.orderedIndex = 0
	b.startBlockElement(attrs)
	return nil
}

func (b *Builder) startListItem(attrs tokenizer.Attributes) error {
	b.emptyTag = true
	b.startBlockElement(attrs)
	m := mark{kind: markList, start: b.doc.Len()}
	if b.inOrderedList {
		b.orderedIndex++
		m.ordered = true
		m.index = b.orderedIndex
	}
	b.marks.push(m)
	return nil
}

// endOrderedRun restarts ordered numbering when a line that is not a list
// item begins outside any open item. Elements nested in an item belong to
// the item's line and leave the count alone.
func (b *Builder) endOrderedRun() {
	if b.marks.lastOf(markList) < 0 {
		b.orderedIndex = 0
	}
}

// endListItem normalizes the line break both before and after converting
// the item, using the list state captured when the item opened.
func (b *Builder) endListItem() bool {
	b.endBlockElement()
	i := b.marks.lastOf(markList)
	if i >= 0 {
		b.setParagraphSpanFromMark(i)
	}
	b.appendNewlines(1)
	return i >= 0
}

func (b *Builder) startChecklist(attrs tokenizer.Attributes) error {
	b.endOrderedRun()
	b.emptyTag = true
	b.startBlockElement(attrs)
	b.marks.push(mark{
		kind:    markChecklist,
		start:   b.doc.Len(),
		checked: attrs.Value("checked") == "true",
	})
	return nil
}

func (b *Builder) startHeading(level int, attrs tokenizer.Attributes) error {
	b.endOrderedRun()
	b.emptyTag = true
	b.startBlockElement(attrs)
	b.marks.push(mark{kind: markHeading, start: b.doc.Len(), level: level})
	return nil
}

func (b *Builder) endHeading(level int) bool {
	b.endBlockElement()
	i := b.marks.last(func(m mark) bool { return m.kind == markHeading && m.level == level })
	if i < 0 {
		return false
	}
	b.setParagraphSpanFromMark(i)
	return true
}

func (b *Builder) startLink(attrs tokenizer.Attributes) error {
	href, ok := attrs.Get("href")
	b.marks.push(mark{kind: markLink, start: b.doc.Len(), href: href, hasHref: ok})
	return nil
}

func (b *Builder) startMention(attrs tokenizer.Attributes) error {
	text, ok := attrs.Get("text")
	var extra map[string]string
	for _, a := range attrs {
		if a.Key == "text" || a.Key == "indicator" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[a.Key] = a.Value
	}
	b.marks.push(mark{
		kind:      markMention,
		start:     b.doc.Len(),
		text:      text,
		hasText:   ok,
		indicator: attrs.Value("indicator"),
		extra:     extra,
	})
	return nil
}

func (b *Builder) startFont(attrs tokenizer.Attributes) error {
	b.marks.push(mark{
		kind:  markColor,
		start: b.doc.Len(),
		color: theme.ParseColor(attrs.Value("color")),
	})
	return nil
}

func (b *Builder) endBreak() bool {
	b.doc.Append('\n')
	return true
}

// addImage appends one placeholder character under a finished image span
// and hands the source to the image loader.
func (b *Builder) addImage(attrs tokenizer.Attributes) error {
	src := attrs.Value("src")
	width, err := intAttr(spans.TagImage, attrs, "width")
	if err != nil {
		return err
	}
	height, err := intAttr(spans.TagImage, attrs, "height")
	if err != nil {
		return err
	}

	start := b.doc.Len()
	b.doc.Append(encoding.ObjectReplacement)
	b.doc.AddSpan(spans.NewImage(src, width, height, start))
	b.emptyTag = false

	if b.opts.Images != nil {
		img := b.opts.Theme.Image
		b.opts.Images.LoadImage(src, img.MaxWidth, img.MinWidth, b.opts.ImageCallbacks)
	}
	return nil
}

// addRule puts a horizontal rule on a line of its own.
func (b *Builder) addRule(tokenizer.Attributes) error {
	b.endOrderedRun()
	b.appendNewlines(1)
	start := b.doc.Len()
	b.doc.Append(encoding.Magic)
	b.doc.AddSpan(spans.New(spans.KindHorizontalRule, start, start+1))
	b.doc.Append('\n')
	b.emptyTag = false
	return nil
}

// addContent puts a content element on a line of its own and attaches it
// to the content host.
func (b *Builder) addContent(attrs tokenizer.Attributes) error {
	var extra map[string]string
	for _, a := range attrs {
		switch a.Key {
		case "text", "type", "src":
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[a.Key] = a.Value
	}

	b.endOrderedRun()
	b.appendNewlines(1)
	start := b.doc.Len()
	b.doc.Append(encoding.Magic)
	span := spans.NewContent(attrs.Value("text"), attrs.Value("type"), attrs.Value("src"), extra, start)
	b.doc.AddSpan(span)
	b.doc.Append('\n')
	b.emptyTag = false

	if b.opts.Content != nil {
		b.opts.Content.Attach(span)
	}
	return nil
}

func intAttr(tag string, attrs tokenizer.Attributes, key string) (int, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.NewAttributeParse(tag, key, v, err)
	}
	return n, nil
}

// appendNewlines tops the trailing run of newlines up to want. An empty
// buffer is left alone.
func (b *Builder) appendNewlines(want int) {
	text := b.doc.Runes()
	if len(text) == 0 {
		return
	}
	existing := 0
	for i := len(text) - 1; i >= 0 && text[i] == '\n'; i-- {
		existing++
	}
	for j := existing; j < want; j++ {
		b.doc.Append('\n')
	}
}

// startBlockElement starts a fresh line and records how many newlines the
// element's end must guarantee.
func (b *Builder) startBlockElement(attrs tokenizer.Attributes) {
	b.appendNewlines(1)
	aligned := b.startAlignment(attrs)
	b.marks.push(mark{kind: markNewline, start: b.doc.Len(), newlines: 1, aligned: aligned})
}

func (b *Builder) endBlockElement() bool {
	i := b.marks.lastOf(markNewline)
	if i < 0 {
		return false
	}
	n := b.marks.remove(i)
	b.appendNewlines(n.newlines)
	if n.aligned {
		if j := b.marks.lastOf(markAlignment); j >= 0 {
			b.setSpanFromMark(j)
		}
	}
	return true
}

func (b *Builder) startAlignment(attrs tokenizer.Attributes) bool {
	v, ok := attrs.Get("alignment")
	if !ok {
		return false
	}
	switch v = strings.ToLower(v); v {
	case "left", "center", "right":
		b.marks.push(mark{kind: markAlignment, start: b.doc.Len(), alignment: v})
		return true
	}
	return false
}

// setSpanFromMark converts the mark at i into a span ending at the buffer
// end. Marks that enclose nothing produce no span.
func (b *Builder) setSpanFromMark(i int) {
	m := b.marks.remove(i)
	end := b.doc.Len()
	if m.start >= end {
		return
	}
	if s, ok := spanFor(m, m.start, end); ok {
		b.doc.AddSpan(s)
	}
}

// setParagraphSpanFromMark converts the mark at i into a paragraph-line or
// block span. An element that received no characters gets a zero-width
// space so that its span is not empty. The line-terminating newline is not
// part of the span.
func (b *Builder) setParagraphSpanFromMark(i int) {
	m := b.marks.remove(i)
	end := b.doc.Len()
	if b.emptyTag {
		b.doc.Append(encoding.ZeroWidthSpace)
		end++
	}
	if end > 0 && b.doc.At(end-1) == '\n' {
		end--
	}
	if m.start >= end {
		return
	}
	if s, ok := spanFor(m, m.start, end); ok {
		b.doc.AddSpan(s)
	}
}

// spanFor builds the finished span of a mark.
func spanFor(m mark, start, end int) (spans.Span, bool) {
	switch m.kind {
	case markBold:
		return spans.New(spans.KindBold, start, end), true
	case markItalic:
		return spans.New(spans.KindItalic, start, end), true
	case markUnderline:
		return spans.New(spans.KindUnderline, start, end), true
	case markStrikethrough:
		return spans.New(spans.KindStrikethrough, start, end), true
	case markInlineCode:
		return spans.New(spans.KindInlineCode, start, end), true
	case markLink:
		if !m.hasHref {
			return spans.Span{}, false
		}
		return spans.NewLink(m.href, start, end), true
	case markMention:
		if !m.hasText {
			return spans.Span{}, false
		}
		return spans.NewMention(m.text, m.indicator, m.extra, start, end), true
	case markColor:
		return spans.NewColor(m.color, start, end), true
	case markHeading:
		return spans.NewHeading(m.level, start, end), true
	case markList:
		if m.ordered {
			return spans.NewOrderedListItem(m.index, start, end), true
		}
		return spans.New(spans.KindUnorderedListItem, start, end), true
	case markChecklist:
		return spans.NewChecklist(m.checked, start, end), true
	case markBlockquote:
		return spans.New(spans.KindBlockquote, start, end), true
	case markCodeBlock:
		return spans.New(spans.KindCodeBlock, start, end), true
	case markAlignment:
		return spans.NewParagraph(m.alignment, start, end), true
	default:
		return spans.Span{}, false
	}
}
