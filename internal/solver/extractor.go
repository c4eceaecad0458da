// internal/solver/extractor.go
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
)

// Extractor obtains the raw challenge bytes for a located source.
type Extractor struct {
	page browser.Page
}

// NewExtractor creates an Extractor reading challenge images from page.
func NewExtractor(page browser.Page) *Extractor {
	return &Extractor{page: page}
}

// Extract returns the image payload, or a *captcha.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, src captcha.Source) (*captcha.Image, error) {
	switch src.Kind {
	case captcha.KindImage:
		return e.fromImage(ctx, src.Handle)
	case captcha.KindCanvas:
		return e.fromCanvas(ctx, src.Handle)
	default:
		return nil, fmt.Errorf("%w: no source to extract from", captcha.ErrNotFound)
	}
}

func (e *Extractor) fromImage(ctx context.Context, selector string) (*captcha.Image, error) {
	url, err := e.page.ImageURL(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to read image source: %w", err)
	}
	if url == "" {
		return nil, &captcha.ExtractionError{Reason: captcha.ReasonEmptySource}
	}

	res, err := e.page.Fetch(ctx, url)
	if err != nil {
		return nil, &captcha.ExtractionError{Reason: captcha.ReasonFetch, Err: err}
	}
	if !res.OK {
		extErr := &captcha.ExtractionError{Reason: captcha.ReasonFetch, Status: res.Status}
		if res.Err != "" {
			extErr.Err = errors.New(res.Err)
		}
		return nil, extErr
	}
	return &captcha.Image{Data: res.Data, ContentType: res.ContentType}, nil
}

func (e *Extractor) fromCanvas(ctx context.Context, selector string) (*captcha.Image, error) {
	data, err := e.page.CanvasPNG(ctx, selector)
	if err != nil {
		return nil, &captcha.ExtractionError{Reason: captcha.ReasonEncode, Err: err}
	}
	if len(data) == 0 {
		return nil, &captcha.ExtractionError{Reason: captcha.ReasonEncode}
	}
	return &captcha.Image{Data: data, ContentType: "image/png"}, nil
}
