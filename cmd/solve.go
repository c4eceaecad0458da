// File: cmd/solve.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/config"
	"github.com/xkilldash9x/captchafill/internal/observability"
	"github.com/xkilldash9x/captchafill/internal/recognition"
	"github.com/xkilldash9x/captchafill/internal/solver"
)

const shutdownTimeout = 10 * time.Second

// pageSession is an open tab the solver can work on.
type pageSession interface {
	browser.Page
	Close()
}

// tabOpener opens tabs in a browser.
type tabOpener interface {
	Open(ctx context.Context, url string) (pageSession, error)
	Shutdown(ctx context.Context) error
}

type managerOpener struct {
	*browser.Manager
}

func (m managerOpener) Open(ctx context.Context, url string) (pageSession, error) {
	tab, err := m.OpenTab(ctx, url)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// launchBrowser starts or attaches to the browser. Tests replace it.
var launchBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (tabOpener, error) {
	m, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return managerOpener{m}, nil
}

// newSolveCmd creates and configures the `solve` command.
func newSolveCmd() *cobra.Command {
	var once bool

	solveCmd := &cobra.Command{
		Use:   "solve [urls...]",
		Short: "Opens each URL in a tab and fills its CAPTCHA whenever one appears",
		Long: `Opens each URL in its own tab and keeps solving the CAPTCHA on it: once at start and
again whenever the page changes, until interrupted. With --once every tab gets a single
solve run and the command exits non-zero if any tab did not succeed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			targets := normalizeTargets(args)
			logger.Info("Starting CAPTCHA solver",
				zap.Strings("targets", targets),
				zap.String("endpoint", cfg.Recognition().Endpoint),
				zap.String("mode", string(cfg.Captcha().Mode)),
				zap.Bool("once", once),
			)

			opener, err := launchBrowser(ctx, cfg.Browser(), logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := opener.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown failed.", zap.Error(err))
				}
			}()

			return newSolveSession(cfg, opener, cmd.OutOrStdout(), logger, once).run(ctx, targets)
		},
	}

	flags := solveCmd.Flags()
	flags.BoolVar(&once, "once", false, "Run a single solve per tab and exit")
	flags.String("endpoint", "", "Recognition service /solve URL (overrides config/env)")
	flags.String("mode", "", "Recognition mode: numeric, alpha or alnum (overrides config/env)")
	flags.Int("length", 0, "Expected text length, 0 for auto (overrides config/env)")
	flags.Int("max-retries", 0, "Attempts per solve run (overrides config/env)")
	flags.Duration("retry-delay", 0, "Delay between attempts (overrides config/env)")
	flags.Bool("auto-submit", false, "Click the submit control after filling (overrides config/env)")
	flags.Bool("headless", false, "Run the browser headless (overrides config/env)")
	flags.String("remote-url", "", "Attach to a running browser's DevTools websocket URL (overrides config/env)")
	flags.Bool("verbose", false, "Log every attempt and recognized text at info level (overrides config/env)")

	for name, key := range map[string]string{
		"endpoint":    "recognition.endpoint",
		"mode":        "captcha.mode",
		"length":      "captcha.length",
		"max-retries": "captcha.max_retries",
		"retry-delay": "captcha.retry_delay",
		"auto-submit": "captcha.auto_submit",
		"headless":    "browser.headless",
		"remote-url":  "browser.remote_url",
		"verbose":     "captcha.verbose",
	} {
		bindFlag(flags, name, key)
	}
	return solveCmd
}

// normalizeTargets adds https:// to targets given without a scheme.
func normalizeTargets(args []string) []string {
	targets := make([]string, len(args))
	for i, a := range args {
		if !strings.Contains(a, "://") && !strings.HasPrefix(a, "about:") {
			a = "https://" + a
		}
		targets[i] = a
	}
	return targets
}

// solveSession runs one Orchestrator per target tab.
type solveSession struct {
	opener tabOpener
	client solver.Recognizer
	cfg    config.CaptchaConfig
	out    io.Writer
	logger *zap.Logger
	once   bool

	mu     sync.Mutex
	failed []string
}

// newSolveSession wires a recognition client for cfg. Once-mode results are printed to out.
func newSolveSession(cfg config.Interface, opener tabOpener, out io.Writer, logger *zap.Logger, once bool) *solveSession {
	client := recognition.NewClient(cfg.Recognition().Endpoint, logger,
		recognition.WithRateLimit(cfg.Recognition().RateLimit))
	return &solveSession{
		opener: opener,
		client: client,
		cfg:    cfg.Captcha(),
		out:    out,
		logger: logger,
		once:   once,
	}
}

func (s *solveSession) run(ctx context.Context, targets []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			return s.solveTarget(gctx, target)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(s.failed) > 0 {
		return fmt.Errorf("%d of %d targets were not solved: %s", len(s.failed), len(targets), strings.Join(s.failed, ", "))
	}
	return nil
}

func (s *solveSession) solveTarget(ctx context.Context, target string) error {
	logger := s.logger.With(zap.String("url", target))

	tab, err := s.opener.Open(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("Failed to open target.", zap.Error(err))
		s.markFailed(target)
		return nil
	}
	defer tab.Close()

	orch := solver.NewOrchestrator(tab, s.client, s.cfg, logger)
	if s.once {
		outcome := orch.Run(ctx)
		fmt.Fprintf(s.out, "%s\t%s\n", target, outcome)
		if outcome != solver.OutcomeSucceeded {
			s.markFailed(target)
		}
		return nil
	}

	if err := solver.NewWatcher(tab, orch, logger).Start(ctx); err != nil {
		logger.Error("Watcher stopped.", zap.Error(err))
		s.markFailed(target)
	}
	return nil
}

func (s *solveSession) markFailed(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, target)
}
