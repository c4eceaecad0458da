// internal/browser/context_utils.go
package browser

import "context"

// CombineContext returns a context derived from primary (keeping its values, which carry
// the chromedp target) that is also canceled when secondary is done. Callers use the tab
// context as primary and the operation's context as secondary.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
