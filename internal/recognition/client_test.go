// internal/recognition/client_test.go
package recognition

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/captchafill/internal/captcha"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	return NewClient(url, zaptest.NewLogger(t), opts...)
}

func requireRecognitionReason(t *testing.T, err error, want captcha.RecognitionReason) *captcha.RecognitionError {
	t.Helper()
	require.Error(t, err)
	var recErr *captcha.RecognitionError
	require.True(t, errors.As(err, &recErr), "expected *captcha.RecognitionError, got %T: %v", err, err)
	assert.Equal(t, want, recErr.Reason)
	return recErr
}

func TestRecognize_SendsMultipartForm(t *testing.T) {
	var (
		gotMode, gotLength, gotFilename, gotPartType string
		gotFile                                      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotMode = r.FormValue("mode")
		gotLength = r.FormValue("length")

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotPartType = hdr.Header.Get("Content-Type")
		gotFile, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  ab12  ","confidence":0.93,"mode":"alnum","length":4}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/solve")
	text, err := c.Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 4)
	require.NoError(t, err)

	assert.Equal(t, "ab12", text, "surrounding whitespace is removed")
	assert.Equal(t, "alnum", gotMode)
	assert.Equal(t, "4", gotLength)
	assert.Equal(t, UploadFilename, gotFilename)
	assert.Equal(t, "image/png", gotPartType)
	assert.Equal(t, pngBytes, gotFile)
}

func TestRecognize_AutoLengthIsSentAsZero(t *testing.T) {
	var gotLength string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		gotLength = r.FormValue("length")
		_, _ = io.WriteString(w, `{"text":"1234"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Recognize(context.Background(), &captcha.Image{Data: pngBytes, ContentType: "image/jpeg"}, captcha.ModeNumeric, 0)
	require.NoError(t, err)
	assert.Equal(t, "0", gotLength)
}

func TestRecognize_ResponseClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantText string
		wantErr  captcha.RecognitionReason
	}{
		{name: "empty text is a valid result", status: 200, body: `{"text":""}`, wantText: ""},
		{name: "missing text field reads as empty", status: 200, body: `{"confidence":0.1}`, wantText: ""},
		{name: "server error", status: 502, body: `{"detail":"upstream"}`, wantErr: captcha.ReasonBadStatus},
		{name: "client error", status: 422, body: ``, wantErr: captcha.ReasonBadStatus},
		{name: "empty body", status: 200, body: ``, wantErr: captcha.ReasonEmptyBody},
		{name: "whitespace body", status: 200, body: "  \n", wantErr: captcha.ReasonEmptyBody},
		{name: "json null", status: 200, body: `null`, wantErr: captcha.ReasonEmptyBody},
		{name: "not json", status: 200, body: `<html>oops</html>`, wantErr: captcha.ReasonEmptyBody},
		{name: "wrong text type", status: 200, body: `{"text":42}`, wantErr: captcha.ReasonEmptyBody},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			text, err := newTestClient(t, srv.URL).Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.wantText, text)
				return
			}
			recErr := requireRecognitionReason(t, err, tc.wantErr)
			if tc.wantErr == captcha.ReasonBadStatus {
				assert.Equal(t, tc.status, recErr.Status)
			}
			assert.Empty(t, text)
		})
	}
}

// stallHandler reads the whole request and then never answers. The body must be drained
// so the server notices the client hanging up; the fallback bounds srv.Close regardless.
func stallHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

func TestRecognize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(stallHandler))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
	requireRecognitionReason(t, err, captcha.ReasonTimeout)
	assert.Less(t, time.Since(start), time.Second, "the client must give up at its own deadline")
}

func TestRecognize_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
	requireRecognitionReason(t, err, captcha.ReasonTransport)
}

func TestRecognize_CallerCancellationIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(stallHandler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, srv.URL).Recognize(ctx, &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
	requireRecognitionReason(t, err, captcha.ReasonTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecognize_CallerDeadlineIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(stallHandler))
	defer srv.Close()

	// The client keeps its default 15s limit; only the caller's shorter deadline fires.
	c := newTestClient(t, srv.URL)
	require.Equal(t, DefaultTimeout, c.timeout)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Recognize(ctx, &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
	requireRecognitionReason(t, err, captcha.ReasonTransport)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecognize_InvalidRequestNeverHitsTheWire(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Recognize(context.Background(), nil, captcha.ModeAlnum, 0)
	assert.ErrorIs(t, err, captcha.ErrInvalidRequest)

	_, err = c.Recognize(context.Background(), &captcha.Image{}, captcha.ModeAlnum, 0)
	assert.ErrorIs(t, err, captcha.ErrInvalidRequest)

	_, err = c.Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.Mode("hex"), 0)
	assert.ErrorIs(t, err, captcha.ErrInvalidRequest)

	_, err = c.Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, -2)
	assert.ErrorIs(t, err, captcha.ErrInvalidRequest)

	assert.Zero(t, calls)
}

func TestRecognize_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRateLimit(10))
	require.NotNil(t, c.limiter)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Recognize(context.Background(), &captcha.Image{Data: pngBytes}, captcha.ModeAlnum, 0)
		require.NoError(t, err)
	}
	// Burst of one at 10/s: the second and third calls each wait ~100ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	assert.Nil(t, newTestClient(t, srv.URL, WithRateLimit(0)).limiter)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_, _ = io.WriteString(w, `{"ok":true}`)
		}))
		defer srv.Close()

		require.NoError(t, newTestClient(t, srv.URL+"/api/solve").Health(context.Background()))
		assert.Equal(t, "/api/health", path)
	})

	t.Run("reports not ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"ok":false}`)
		}))
		defer srv.Close()

		err := newTestClient(t, srv.URL+"/solve").Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not ok")
	})

	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := newTestClient(t, srv.URL+"/solve").Health(context.Background())
		requireRecognitionReason(t, err, captcha.ReasonBadStatus)
	})
}
