// internal/solver/orchestrator.go
package solver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
	"github.com/xkilldash9x/captchafill/internal/config"
)

// State is the single-flight state of an Orchestrator.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Outcome is how a run request ended.
type Outcome int

const (
	// OutcomeSucceeded means the field was filled.
	OutcomeSucceeded Outcome = iota
	// OutcomeExhausted means every attempt failed.
	OutcomeExhausted
	// OutcomeDropped means another run was active and the request was discarded.
	OutcomeDropped
	// OutcomeAborted means the context was canceled mid-run.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeDropped:
		return "dropped"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Recognizer turns a challenge image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img *captcha.Image, mode captcha.Mode, length int) (string, error)
}

// Snapshot is a point-in-time view of the orchestrator's state.
type Snapshot struct {
	State   State
	Attempt int
}

// Orchestrator drives solve runs for one page. At most one run is active at a time;
// requests arriving while a run is active are dropped, not queued.
type Orchestrator struct {
	cfg        config.CaptchaConfig
	page       browser.Page
	locator    *Locator
	extractor  *Extractor
	recognizer Recognizer
	filler     *Filler
	logger     *zap.Logger

	// sleep waits between attempts. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   State
	attempt int

	wg sync.WaitGroup
}

// NewOrchestrator wires the solve pipeline for page. cfg is copied and never modified.
func NewOrchestrator(page browser.Page, recognizer Recognizer, cfg config.CaptchaConfig, logger *zap.Logger) *Orchestrator {
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		cfg:        cfg,
		page:       page,
		locator:    NewLocator(page, cfg.ImageSelector, cfg.CanvasSelector, cfg.InputSelector),
		extractor:  NewExtractor(page),
		recognizer: recognizer,
		filler:     NewFiller(page, cfg.AutoSubmit, cfg.SubmitSelector, logger),
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Snapshot returns the current state and attempt counter.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{State: o.state, Attempt: o.attempt}
}

// tryStart moves Idle to Running(0). It reports false when a run is already active.
func (o *Orchestrator) tryStart() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return false
	}
	o.state = StateRunning
	o.attempt = 0
	return true
}

// advance moves to the next attempt. It reports false once the retry budget is spent,
// leaving the counter below MaxRetries.
func (o *Orchestrator) advance() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt+1 >= o.cfg.MaxRetries {
		return false
	}
	o.attempt++
	return true
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.attempt = 0
}

// Run performs one solve run synchronously, or returns OutcomeDropped at once if a run
// is already active.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	if !o.tryStart() {
		o.logger.Debug("Run request dropped, a run is already active.")
		return OutcomeDropped
	}
	return o.run(ctx)
}

// Trigger requests a run without blocking. It reports whether a run was started.
func (o *Orchestrator) Trigger(ctx context.Context) bool {
	if !o.tryStart() {
		o.logger.Debug("Run request dropped, a run is already active.")
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx)
	}()
	return true
}

// Wait blocks until every run started by Trigger has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run executes the attempt loop. The caller must have won tryStart.
func (o *Orchestrator) run(ctx context.Context) Outcome {
	defer o.finish()

	logger := o.logger.With(zap.String("run_id", uuid.New().String()))
	logger.Debug("Solve run started.", zap.Int("max_retries", o.cfg.MaxRetries))

	for {
		if ctx.Err() != nil {
			logger.Debug("Solve run aborted.", zap.Error(ctx.Err()))
			return OutcomeAborted
		}

		attempt := o.Snapshot().Attempt
		err := o.attemptOnce(ctx, logger.With(zap.Int("attempt", attempt+1)))
		if err == nil {
			logger.Info("CAPTCHA filled.", zap.Int("attempt", attempt+1))
			return OutcomeSucceeded
		}
		if ctx.Err() != nil {
			logger.Debug("Solve run aborted.", zap.Error(ctx.Err()))
			return OutcomeAborted
		}
		o.logFailure(logger, attempt+1, err)

		o.refresh(ctx, logger)
		if err := o.sleep(ctx, o.cfg.RetryDelay); err != nil {
			logger.Debug("Solve run aborted during retry delay.", zap.Error(err))
			return OutcomeAborted
		}

		if !o.advance() {
			logger.Warn("CAPTCHA solve stopped after max retries.", zap.Int("max_retries", o.cfg.MaxRetries))
			return OutcomeExhausted
		}
	}
}

// attemptOnce runs Locator, Extractor, Recognizer, validation and Filler in order.
func (o *Orchestrator) attemptOnce(ctx context.Context, logger *zap.Logger) error {
	src, input, err := o.locator.Locate(ctx)
	if err != nil {
		return err
	}

	img, err := o.extractor.Extract(ctx, src)
	if err != nil {
		return err
	}

	text, err := o.recognizer.Recognize(ctx, img, o.cfg.Mode, o.cfg.Length)
	if err != nil {
		return err
	}
	o.verbose(logger, "OCR result.", zap.String("text", text), zap.Stringer("source", src.Kind))

	if !captcha.IsAcceptable(text, o.cfg.MinTextLength, o.cfg.MaxTextLength) {
		return &captcha.ValidationError{Text: text}
	}

	return o.filler.Fill(ctx, input, text)
}

func (o *Orchestrator) logFailure(logger *zap.Logger, attempt int, err error) {
	fields := []zap.Field{
		zap.Int("attempt", attempt),
		zap.String("reason", captcha.Reason(err)),
		zap.Error(err),
	}
	var (
		extErr *captcha.ExtractionError
		recErr *captcha.RecognitionError
	)
	switch {
	case errors.As(err, &extErr) && extErr.Status != 0:
		fields = append(fields, zap.Int("status", extErr.Status))
	case errors.As(err, &recErr) && recErr.Status != 0:
		fields = append(fields, zap.Int("status", recErr.Status))
	}
	o.verbose(logger, "Solve attempt failed.", fields...)
}

// refresh clicks the refresh control if one is configured. It never fails the run.
func (o *Orchestrator) refresh(ctx context.Context, logger *zap.Logger) {
	if o.cfg.RefreshSelector == "" {
		return
	}
	clicked, err := o.page.Click(ctx, o.cfg.RefreshSelector)
	if err != nil {
		logger.Debug("Refresh click failed.", zap.Error(err))
		return
	}
	if clicked {
		logger.Debug("CAPTCHA refreshed.")
	}
}

// verbose logs at Info when captcha.verbose is set, Debug otherwise.
func (o *Orchestrator) verbose(logger *zap.Logger, msg string, fields ...zap.Field) {
	level := zapcore.DebugLevel
	if o.cfg.Verbose {
		level = zapcore.InfoLevel
	}
	if ce := logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
