package builder

import "github.com/FocuswithJustin/enriched/core/spans"

// ImageCallbacks receives the progress of an image load started by an
// ImageLoader.
type ImageCallbacks interface {
	ImageLoading(src string)
	ImageLoaded(src string, width, height int)
	ImageFailed(src string, err error)
}

// ImageLoader resolves image sources for an editing surface. LoadImage is
// called once per img element and must return without waiting for the
// image; progress is reported through callbacks.
type ImageLoader interface {
	LoadImage(src string, maxWidth, minWidth int, callbacks ImageCallbacks)
}

// ContentHost receives every finished content span so that the surface can
// attach a view for it.
type ContentHost interface {
	Attach(span spans.Span)
}

// ImageLoaderFunc adapts a function to ImageLoader.
type ImageLoaderFunc func(src string, maxWidth, minWidth int, callbacks ImageCallbacks)

// LoadImage calls f.
func (f ImageLoaderFunc) LoadImage(src string, maxWidth, minWidth int, callbacks ImageCallbacks) {
	f(src, maxWidth, minWidth, callbacks)
}

// ContentHostFunc adapts a function to ContentHost.
type ContentHostFunc func(span spans.Span)

// Attach calls f.
func (f ContentHostFunc) Attach(span spans.Span) {
	f(span)
}
