// internal/solver/helpers_test.go
package solver

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
	"github.com/xkilldash9x/captchafill/internal/config"
)

const (
	testImageSel   = "form > img"
	testCanvasSel  = "canvas.captcha"
	testInputSel   = "form > input[name=code]"
	testRefreshSel = "#refresh"
	testSubmitSel  = "#submit"
)

func testCaptchaConfig() config.CaptchaConfig {
	return config.CaptchaConfig{
		ImageSelector:  testImageSel,
		CanvasSelector: testCanvasSel,
		InputSelector:  testInputSel,
		Mode:           captcha.ModeAlnum,
		MaxRetries:     3,
		RetryDelay:     0,
		MinTextLength:  3,
		MaxTextLength:  12,
		Verbose:        true,
	}
}

// fakePage is an in-memory page: a set of present selectors plus what the image and
// canvas yield. It records fills and clicks.
type fakePage struct {
	mu         sync.Mutex
	present    map[string]bool
	imageURL   string
	fetch      *browser.FetchResult
	canvas     []byte
	values     map[string]string
	fills      int
	clicks     map[string]int
	mutations  chan struct{}
	observeErr error
}

var _ browser.Page = (*fakePage)(nil)

func newFakePage(selectors ...string) *fakePage {
	p := &fakePage{
		present:   make(map[string]bool),
		values:    make(map[string]string),
		clicks:    make(map[string]int),
		mutations: make(chan struct{}, 1),
		imageURL:  "https://example.test/captcha.png",
		fetch:     &browser.FetchResult{OK: true, Status: 200, ContentType: "image/png", Data: []byte("png")},
		canvas:    []byte("canvas-png"),
	}
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector], nil
}

func (p *fakePage) ImageURL(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return "", nil
	}
	return p.imageURL, nil
}

func (p *fakePage) Fetch(context.Context, string) (*browser.FetchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetch, nil
}

func (p *fakePage) CanvasPNG(_ context.Context, selector string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return nil, nil
	}
	return p.canvas, nil
}

func (p *fakePage) SetValue(_ context.Context, selector, value string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return false, nil
	}
	p.values[selector] = value
	p.fills++
	return true, nil
}

func (p *fakePage) Click(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return false, nil
	}
	p.clicks[selector]++
	return true, nil
}

func (p *fakePage) ObserveMutations(context.Context) (<-chan struct{}, error) {
	if p.observeErr != nil {
		return nil, p.observeErr
	}
	return p.mutations, nil
}

func (p *fakePage) fillCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills
}

func (p *fakePage) clickCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[selector]
}

func (p *fakePage) value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// scriptedRecognizer returns its responses in order, repeating the last one.
type scriptedRecognizer struct {
	mu    sync.Mutex
	texts []string
	errs  []error
	calls int
	// block, when set, is called on every Recognize before answering.
	block func(ctx context.Context)
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, _ *captcha.Image, _ captcha.Mode, _ int) (string, error) {
	if r.block != nil {
		r.block(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++

	var (
		text string
		err  error
	)
	if len(r.texts) > 0 {
		text = r.texts[min(i, len(r.texts)-1)]
	}
	if len(r.errs) > 0 {
		err = r.errs[min(i, len(r.errs)-1)]
	}
	return text, err
}

func (r *scriptedRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// recordSleeps replaces the orchestrator's retry delay with a counter.
func recordSleeps(o *Orchestrator) *[]time.Duration {
	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return &sleeps
}
