// internal/browser/page.go
package browser

import "context"

// Page is the hosting page as the solver sees it. Selectors are CSS selectors resolved
// against the document at the time of each call; nothing is cached between calls.
type Page interface {
	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	// ImageURL returns currentSrc, falling back to src, of the matched image.
	// It is empty when the element is gone or has no source.
	ImageURL(ctx context.Context, selector string) (string, error)
	// Fetch retrieves url from inside the page, bypassing the cache and sending the
	// page's credentials.
	Fetch(ctx context.Context, url string) (*FetchResult, error)
	// CanvasPNG encodes the matched canvas as PNG. It returns nil data when encoding
	// produced nothing.
	CanvasPNG(ctx context.Context, selector string) ([]byte, error)
	// SetValue writes value into the matched field and dispatches bubbling input and
	// change events, in that order. It reports whether the field was present.
	SetValue(ctx context.Context, selector, value string) (bool, error)
	// Click activates the matched element. It reports whether the element was present.
	Click(ctx context.Context, selector string) (bool, error)
	// ObserveMutations starts watching structural changes of the document. The returned
	// channel receives a signal per change; signals are coalesced while unread.
	ObserveMutations(ctx context.Context) (<-chan struct{}, error)
}

// FetchResult is the outcome of an in-page fetch. Status is 0 on network failure.
type FetchResult struct {
	OK          bool
	Status      int
	ContentType string
	Data        []byte
	Err         string
}
