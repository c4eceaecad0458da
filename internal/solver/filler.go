// internal/solver/filler.go
package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
)

// Filler writes accepted text into the input and optionally submits the form.
type Filler struct {
	page           browser.Page
	autoSubmit     bool
	submitSelector string
	logger         *zap.Logger
}

// NewFiller creates a Filler. submitSelector is clicked after a fill only when autoSubmit is set.
func NewFiller(page browser.Page, autoSubmit bool, submitSelector string, logger *zap.Logger) *Filler {
	return &Filler{
		page:           page,
		autoSubmit:     autoSubmit,
		submitSelector: submitSelector,
		logger:         logger,
	}
}

// Fill sets the field value, fires input then change, and clicks the submit control
// when auto-submit is on. Filling the same text twice is harmless.
func (f *Filler) Fill(ctx context.Context, inputSelector, text string) error {
	ok, err := f.page.SetValue(ctx, inputSelector, text)
	if err != nil {
		return fmt.Errorf("failed to fill input %q: %w", inputSelector, err)
	}
	if !ok {
		return fmt.Errorf("%w: input %q disappeared before filling", captcha.ErrNotFound, inputSelector)
	}
	f.maybeSubmit(ctx)
	return nil
}

// maybeSubmit is best effort: the field is already filled, and failing the attempt here
// would fill and submit again on retry.
func (f *Filler) maybeSubmit(ctx context.Context) {
	if !f.autoSubmit || f.submitSelector == "" {
		return
	}
	clicked, err := f.page.Click(ctx, f.submitSelector)
	switch {
	case err != nil:
		f.logger.Warn("Submit click failed.", zap.String("selector", f.submitSelector), zap.Error(err))
	case !clicked:
		f.logger.Debug("Submit control not present, skipping.", zap.String("selector", f.submitSelector))
	default:
		f.logger.Debug("Form submitted.")
	}
}
