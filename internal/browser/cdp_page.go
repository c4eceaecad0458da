// internal/browser/cdp_page.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// mutationBinding is the page-side function the observer script calls on every change.
const mutationBinding = "__captchafillMutation"

// CDPPage implements Page on top of a chromedp tab context.
type CDPPage struct {
	ctx    context.Context // the tab context; carries the CDP target
	logger *zap.Logger

	// evaluate runs a script and returns its JSON encoded result. Tests replace it.
	evaluate func(ctx context.Context, script string) ([]byte, error)
	// runActionsFunc executes raw CDP actions against the tab. Tests replace it.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	// listen subscribes to target events. Tests replace it.
	listen func(fn func(ev interface{}))

	observeOnce sync.Once
	observeErr  error
	mutations   chan struct{}
}

var _ Page = (*CDPPage)(nil)

// NewCDPPage wraps an initialized chromedp tab context.
func NewCDPPage(tabCtx context.Context, logger *zap.Logger) *CDPPage {
	p := &CDPPage{
		ctx:       tabCtx,
		logger:    logger.Named("page"),
		mutations: make(chan struct{}, 1),
	}
	p.runActionsFunc = p.runActions
	p.evaluate = p.evaluateCDP
	p.listen = func(fn func(ev interface{})) { chromedp.ListenTarget(tabCtx, fn) }
	return p
}

// runActions executes actions on the tab, bounded by both the tab's lifetime and ctx.
func (p *CDPPage) runActions(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (p *CDPPage) evaluateCDP(ctx context.Context, script string) ([]byte, error) {
	var res []byte
	err := p.runActionsFunc(ctx,
		chromedp.Evaluate(script, &res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// call invokes an embedded script and decodes its result into out.
func (p *CDPPage) call(ctx context.Context, out any, name string, args ...any) error {
	script, err := invoke(name, args...)
	if err != nil {
		return err
	}
	raw, err := p.evaluate(ctx, script)
	if err != nil {
		return fmt.Errorf("script %s failed: %w", name, err)
	}
	if len(raw) == 0 {
		raw = []byte("null")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w (payload: %s)", name, err, string(raw))
	}
	return nil
}

func (p *CDPPage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := p.call(ctx, &found, scriptExists, selector)
	return found, err
}

func (p *CDPPage) ImageURL(ctx context.Context, selector string) (string, error) {
	var src string
	err := p.call(ctx, &src, scriptImageURL, selector)
	return src, err
}

func (p *CDPPage) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	var res struct {
		OK          bool   `json:"ok"`
		Status      int    `json:"status"`
		ContentType string `json:"contentType"`
		Data        string `json:"data"`
		Error       string `json:"error"`
	}
	if err := p.call(ctx, &res, scriptFetch, url); err != nil {
		return nil, err
	}

	out := &FetchResult{OK: res.OK, Status: res.Status, ContentType: res.ContentType, Err: res.Error}
	if res.Data != "" {
		data, err := base64.StdEncoding.DecodeString(res.Data)
		if err != nil {
			return nil, fmt.Errorf("fetched body is not valid base64: %w", err)
		}
		out.Data = data
	}
	return out, nil
}

func (p *CDPPage) CanvasPNG(ctx context.Context, selector string) ([]byte, error) {
	var encoded *string
	if err := p.call(ctx, &encoded, scriptCanvasPNG, selector); err != nil {
		return nil, err
	}
	if encoded == nil || *encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return nil, fmt.Errorf("canvas data URL is not valid base64: %w", err)
	}
	return data, nil
}

func (p *CDPPage) SetValue(ctx context.Context, selector, value string) (bool, error) {
	var ok bool
	err := p.call(ctx, &ok, scriptSetValue, selector, value)
	return ok, err
}

func (p *CDPPage) Click(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.call(ctx, &ok, scriptClick, selector)
	return ok, err
}

// ObserveMutations installs the binding and the observer once per page. The observer is
// also registered for every future document so navigations keep reporting.
func (p *CDPPage) ObserveMutations(ctx context.Context) (<-chan struct{}, error) {
	p.observeOnce.Do(func() {
		script, err := invoke(scriptObserve, mutationBinding)
		if err != nil {
			p.observeErr = err
			return
		}

		p.listen(func(ev interface{}) {
			if e, ok := ev.(*runtime.EventBindingCalled); ok {
				p.handleBindingCalled(e)
			}
		})

		err = p.runActionsFunc(ctx,
			runtime.AddBinding(mutationBinding),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
				return err
			}),
		)
		if err != nil {
			p.observeErr = fmt.Errorf("failed to install mutation binding: %w", err)
			return
		}

		if _, err := p.evaluate(ctx, script); err != nil {
			p.observeErr = fmt.Errorf("failed to start mutation observer: %w", err)
			return
		}
		p.logger.Debug("Mutation observer installed.")
	})
	if p.observeErr != nil {
		return nil, p.observeErr
	}
	return p.mutations, nil
}

// handleBindingCalled runs on the chromedp event goroutine and must not block.
func (p *CDPPage) handleBindingCalled(ev *runtime.EventBindingCalled) {
	if ev.Name != mutationBinding {
		return
	}
	select {
	case p.mutations <- struct{}{}:
	default:
	}
}
