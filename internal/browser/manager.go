// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/captchafill/internal/config"
)

// Manager owns the browser process (or the attachment to a remote one) and the tabs
// opened in it.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process. All tab contexts derive from browserCtx.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open tabs for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches a local browser, or attaches to cfg.RemoteURL when set, and checks
// that it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}

	if cfg.RemoteURL != "" {
		m.logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.RemoteURL))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		m.logger.Info("Launching browser.", zap.Bool("headless", cfg.Headless))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	}

	// The first context owns the browser connection. It must be started without a
	// deadline, or the browser would go away when the deadline expires.
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser is ready.")
	return m, nil
}

// buildAllocatorOptions assembles the launch flags from the browser configuration.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	return allocatorOptions(m.cfg)
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
	)

	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, f := range parseArgs(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}

	// Flags required for running inside containers.
	if goruntime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

type argFlag struct {
	name  string
	value interface{}
}

// parseArgs turns "--name=value" and "--name" config entries into allocator flags.
func parseArgs(args []string) []argFlag {
	var flags []argFlag
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, argFlag{name: name, value: parts[1]})
		} else {
			flags = append(flags, argFlag{name: name, value: true})
		}
	}
	return flags
}

// Tab is one browser tab opened by the Manager.
type Tab struct {
	*CDPPage
	ID  string
	URL string

	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        *sync.WaitGroup
}

// Close closes the tab. It is safe to call more than once.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.wg.Done()
	})
}

// OpenTab opens a new tab and navigates it to url, waiting until the body is ready.
func (m *Manager) OpenTab(ctx context.Context, url string) (*Tab, error) {
	id := uuid.New().String()
	logger := m.logger.With(zap.String("tab_id", id[:8]), zap.String("url", url))

	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	// Allocate the target before any deadline applies.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	navCtx, navCancel := CombineContext(tabCtx, ctx)
	defer navCancel()
	if m.cfg.NavigationTimeout > 0 {
		var timeoutCancel context.CancelFunc
		navCtx, timeoutCancel = context.WithTimeout(navCtx, m.cfg.NavigationTimeout)
		defer timeoutCancel()
	}

	logger.Debug("Navigating.")
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		cancel()
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigation to %s timed out after %s: %w", url, m.cfg.NavigationTimeout, err)
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	m.wg.Add(1)
	logger.Info("Tab ready.")
	return &Tab{
		CDPPage: NewCDPPage(tabCtx, logger),
		ID:      id,
		URL:     url,
		cancel:  cancel,
		wg:      &m.wg,
	}, nil
}

// Shutdown waits for open tabs to close, bounded by ctx, then releases the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All tabs closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
