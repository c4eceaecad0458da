// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/captchafill/internal/config"
	"github.com/xkilldash9x/captchafill/internal/mocks"
	"github.com/xkilldash9x/captchafill/internal/observability"
)

// resetForTest isolates a command run from the host: no config file discovery, no
// CAPTCHAFILL_* leakage and a silent global logger.
func resetForTest(t *testing.T) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console"}, zapcore.AddSync(io.Discard))
	t.Cleanup(observability.ResetForTest)

	original := launchBrowser
	t.Cleanup(func() { launchBrowser = original })
}

// runCommand executes a fresh command tree and returns what it printed on stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCommandContext(context.Background(), args...)
}

func runCommandContext(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := execute(ctx, root)
	return out.String(), err
}

// fakeTab is a MockPage that can be closed.
type fakeTab struct {
	*mocks.MockPage
	mu     sync.Mutex
	closed bool
}

func (f *fakeTab) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTab) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener serves prepared tabs by URL. URLs without a tab fail to open.
type fakeOpener struct {
	mu       sync.Mutex
	tabs     map[string]*fakeTab
	opened   []string
	shutdown bool
	gotCfg   config.BrowserConfig
}

func (f *fakeOpener) Open(_ context.Context, url string) (pageSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	tab, ok := f.tabs[url]
	if !ok {
		return nil, assert.AnError
	}
	return tab, nil
}

func (f *fakeOpener) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

func (f *fakeOpener) install() {
	launchBrowser = func(_ context.Context, cfg config.BrowserConfig, _ *zap.Logger) (tabOpener, error) {
		f.mu.Lock()
		f.gotCfg = cfg
		f.mu.Unlock()
		return f, nil
	}
}

// newRecognitionServer answers every /solve request with body and /health with ok.
func newRecognitionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
