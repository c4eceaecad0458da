// internal/solver/watcher.go
package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/captchafill/internal/browser"
)

// Runner is the part of the Orchestrator the Watcher needs.
type Runner interface {
	Trigger(ctx context.Context) bool
	Wait()
}

// Watcher requests a solve run at start and on every structural change of the page.
type Watcher struct {
	page   browser.Page
	runs   Runner
	logger *zap.Logger
}

// NewWatcher creates a Watcher that asks runs for a solve whenever page changes.
func NewWatcher(page browser.Page, runs Runner, logger *zap.Logger) *Watcher {
	return &Watcher{page: page, runs: runs, logger: logger.Named("watcher")}
}

// Start blocks until ctx is done. It returns nil on cancellation and an error only when
// the mutation observer cannot be installed. Runs still in flight are awaited.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.runs.Wait()

	w.runs.Trigger(ctx)

	changes, err := w.page.ObserveMutations(ctx)
	if err != nil {
		return fmt.Errorf("failed to observe page mutations: %w", err)
	}
	w.logger.Debug("Watching page for changes.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			w.runs.Trigger(ctx)
		}
	}
}
