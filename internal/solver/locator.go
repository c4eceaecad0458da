// internal/solver/locator.go
package solver

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
)

// Locator finds the challenge presentation and the target input on the page.
type Locator struct {
	page           browser.Page
	imageSelector  string
	canvasSelector string
	inputSelector  string
}

// NewLocator creates a Locator. Either source selector may be empty.
func NewLocator(page browser.Page, imageSelector, canvasSelector, inputSelector string) *Locator {
	return &Locator{
		page:           page,
		imageSelector:  imageSelector,
		canvasSelector: canvasSelector,
		inputSelector:  inputSelector,
	}
}

// Locate returns the challenge source and the input selector. The image selector takes
// priority over the canvas selector. It returns captcha.ErrNotFound when either the
// source or the input is missing.
func (l *Locator) Locate(ctx context.Context) (captcha.Source, string, error) {
	src, err := l.source(ctx)
	if err != nil {
		return captcha.Source{}, "", err
	}
	if !src.Found() {
		return captcha.Source{}, "", fmt.Errorf("%w: no element matches the image or canvas selector", captcha.ErrNotFound)
	}

	found, err := l.page.Exists(ctx, l.inputSelector)
	if err != nil {
		return captcha.Source{}, "", fmt.Errorf("failed to query input %q: %w", l.inputSelector, err)
	}
	if !found {
		return captcha.Source{}, "", fmt.Errorf("%w: input %q", captcha.ErrNotFound, l.inputSelector)
	}
	return src, l.inputSelector, nil
}

func (l *Locator) source(ctx context.Context) (captcha.Source, error) {
	candidates := []struct {
		selector string
		build    func(string) captcha.Source
	}{
		{l.imageSelector, captcha.ImageSource},
		{l.canvasSelector, captcha.CanvasSource},
	}
	for _, c := range candidates {
		if c.selector == "" {
			continue
		}
		found, err := l.page.Exists(ctx, c.selector)
		if err != nil {
			return captcha.Source{}, fmt.Errorf("failed to query %q: %w", c.selector, err)
		}
		if found {
			return c.build(c.selector), nil
		}
	}
	return captcha.Source{}, nil
}
