// Package transcode is the entry point for converting between markup and
// the document model.
//
// A Transcoder adds request-scoped logging and an optional result cache
// around the builder and the serializer. The package-level functions use a
// shared Transcoder without a cache.
package transcode

import (
	"context"
	"time"

	"github.com/FocuswithJustin/enriched/core/builder"
	"github.com/FocuswithJustin/enriched/core/cache"
	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/serializer"
	"github.com/FocuswithJustin/enriched/core/theme"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

// Conversion directions, as they appear in logs and on the wire.
const (
	DirectionToModel  = "to-model"
	DirectionToMarkup = "to-markup"
)

// Transcoder converts in both directions. It is safe for concurrent use;
// every conversion runs on its own builder.
type Transcoder struct {
	cache *cache.Conversions
	theme *theme.Theme
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithCache reuses results through c.
func WithCache(c *cache.Conversions) Option {
	return func(t *Transcoder) { t.cache = c }
}

// WithTheme sets the theme attached to built documents when the caller
// does not pass one.
func WithTheme(th *theme.Theme) Option {
	return func(t *Transcoder) { t.theme = th }
}

// New returns a Transcoder.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{}
	for _, opt := range opts {
		opt(t)
	}
	if t.theme == nil {
		t.theme = theme.Default()
	}
	return t
}

// Cache returns the result cache, or nil.
func (t *Transcoder) Cache() *cache.Conversions {
	return t.cache
}

// ensureRequestID gives ctx a request ID when it has none.
func ensureRequestID(ctx context.Context) context.Context {
	if logging.GetRequestID(ctx) != "" {
		return ctx
	}
	return logging.WithRequestID(ctx, logging.NewRequestID())
}

// FromMarkup builds a document from markup. Results are cached only when
// no image loader or content host is set, since a cache hit would skip
// their calls.
func (t *Transcoder) FromMarkup(ctx context.Context, markup string, opts builder.Options) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = ensureRequestID(ctx)
	start := time.Now()

	if opts.Theme == nil {
		opts.Theme = t.theme
	}
	if opts.Logger == nil {
		opts.Logger = logging.LoggerFromContext(ctx)
	}
	cacheable := t.cache != nil && opts.Images == nil && opts.Content == nil
	if t.cache != nil && !cacheable {
		logging.DebugContext(ctx, "conversion cache bypassed", "reason", "collaborators set")
	}

	if cacheable {
		if doc, ok := t.cache.Model(markup); ok {
			doc = doc.WithTheme(opts.Theme)
			logging.Conversion(ctx, DirectionToModel, len(markup), len(doc.Spans()), true, time.Since(start))
			return doc, nil
		}
	}

	doc, err := builder.Build(markup, opts)
	if err != nil {
		logging.ConversionError(ctx, DirectionToModel, err)
		return nil, err
	}
	if cacheable {
		t.cache.PutModel(markup, doc)
	}

	logging.Conversion(ctx, DirectionToModel, len(markup), len(doc.Spans()), false, time.Since(start))
	return doc, nil
}

// ToMarkup serializes doc.
func (t *Transcoder) ToMarkup(ctx context.Context, doc *document.Document) string {
	ctx = ensureRequestID(ctx)
	start := time.Now()

	var hash string
	if t.cache != nil {
		hash = doc.Hash()
		if markup, ok := t.cache.Markup(hash); ok {
			logging.Conversion(ctx, DirectionToMarkup, doc.Len(), len(doc.Spans()), true, time.Since(start))
			return markup
		}
	}

	markup := serializer.Serialize(doc)
	if t.cache != nil {
		t.cache.PutMarkup(hash, markup)
	}

	logging.Conversion(ctx, DirectionToMarkup, doc.Len(), len(doc.Spans()), false, time.Since(start))
	return markup
}

// ToMarkupWithDefault serializes doc, or returns the empty-paragraph
// envelope when doc is nil.
func (t *Transcoder) ToMarkupWithDefault(ctx context.Context, doc *document.Document) string {
	if doc == nil {
		return serializer.EmptyMarkup
	}
	return t.ToMarkup(ctx, doc)
}

// RoundTrip builds markup and serializes the result, returning the
// normalized markup and the intermediate document.
func (t *Transcoder) RoundTrip(ctx context.Context, markup string) (string, *document.Document, error) {
	ctx = ensureRequestID(ctx)
	doc, err := t.FromMarkup(ctx, markup, builder.Options{})
	if err != nil {
		return "", nil, err
	}
	return t.ToMarkup(ctx, doc), doc, nil
}

var std = New()

// FromMarkup builds a document from markup with the shared Transcoder.
func FromMarkup(ctx context.Context, markup string, opts builder.Options) (*document.Document, error) {
	return std.FromMarkup(ctx, markup, opts)
}

// ToMarkup serializes doc with the shared Transcoder.
func ToMarkup(ctx context.Context, doc *document.Document) string {
	return std.ToMarkup(ctx, doc)
}

// ToMarkupWithDefault serializes doc, or returns the empty-paragraph
// envelope when doc is nil.
func ToMarkupWithDefault(ctx context.Context, doc *document.Document) string {
	return std.ToMarkupWithDefault(ctx, doc)
}

// RoundTrip builds and re-serializes markup with the shared Transcoder.
func RoundTrip(ctx context.Context, markup string) (string, *document.Document, error) {
	return std.RoundTrip(ctx, markup)
}
