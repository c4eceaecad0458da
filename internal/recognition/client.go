// internal/recognition/client.go
package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/captchafill/internal/captcha"
)

const (
	// DefaultTimeout bounds a single recognition call, independent of the caller's context.
	DefaultTimeout = 15 * time.Second

	// UploadFilename is the filename announced for the image part.
	UploadFilename = "captcha.png"

	maxResponseBytes = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client sends challenge images to the recognition service. It performs exactly one
// request per call; retrying is the caller's business.
type Client struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewClient creates a Client for the given /solve endpoint.
func NewClient(endpoint string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		logger:   logger.Named("recognition"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured /solve URL.
func (c *Client) Endpoint() string { return c.endpoint }

// solveResponse mirrors the service's JSON reply. Only text is required by the client.
type solveResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Mode       string   `json:"mode"`
	Length     int      `json:"length"`
}

// Recognize uploads img and returns the recognized text with surrounding whitespace
// removed. An empty string is a valid result. length 0 lets the service pick the length.
// Failures are *captcha.RecognitionError, or wrap captcha.ErrInvalidRequest when the
// request is rejected before being sent.
func (c *Client) Recognize(ctx context.Context, img *captcha.Image, mode captcha.Mode, length int) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("%w: empty image payload", captcha.ErrInvalidRequest)
	}
	if !mode.Valid() {
		return "", fmt.Errorf("%w: unsupported mode %q", captcha.ErrInvalidRequest, mode)
	}
	if length < 0 {
		return "", fmt.Errorf("%w: length must be >= 0", captcha.ErrInvalidRequest)
	}

	body, contentType, err := encodeForm(img, mode, length)
	if err != nil {
		return "", fmt.Errorf("%w: %v", captcha.ErrInvalidRequest, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &captcha.RecognitionError{Reason: captcha.ReasonTransport, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", &captcha.RecognitionError{Reason: captcha.ReasonTransport, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.classify(ctx, reqCtx, err)
	}

	c.logger.Debug("Recognition response received.",
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &captcha.RecognitionError{Reason: captcha.ReasonBadStatus, Status: resp.StatusCode}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return "", &captcha.RecognitionError{Reason: captcha.ReasonEmptyBody}
	}

	var parsed *solveResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &captcha.RecognitionError{Reason: captcha.ReasonEmptyBody, Err: err}
	}
	if parsed == nil {
		return "", &captcha.RecognitionError{Reason: captcha.ReasonEmptyBody}
	}

	return strings.TrimSpace(parsed.Text), nil
}

// classify separates the fixed timeout from every other transport failure. A caller
// context that ended first, by cancellation or by its own deadline, is a transport error.
func (c *Client) classify(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return &captcha.RecognitionError{Reason: captcha.ReasonTransport, Err: err}
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &captcha.RecognitionError{Reason: captcha.ReasonTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &captcha.RecognitionError{Reason: captcha.ReasonTimeout, Err: err}
	}
	return &captcha.RecognitionError{Reason: captcha.ReasonTransport, Err: err}
}

// encodeForm builds the multipart body: file, mode, length.
func encodeForm(img *captcha.Image, mode captcha.Mode, length int) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, UploadFilename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("mode", string(mode)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("length", strconv.Itoa(length)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Health queries the service's /health route, a sibling of the /solve endpoint.
func (c *Client) Health(ctx context.Context) error {
	healthURL, err := siblingURL(c.endpoint, "health")
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &captcha.RecognitionError{Reason: captcha.ReasonBadStatus, Status: resp.StatusCode}
	}

	var status struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		return &captcha.RecognitionError{Reason: captcha.ReasonEmptyBody, Err: err}
	}
	if !status.OK {
		return fmt.Errorf("recognition service at %s reports not ok", healthURL)
	}
	return nil
}

func siblingURL(endpoint, name string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid recognition endpoint %q: %w", endpoint, err)
	}
	ref := &url.URL{Path: name}
	return base.ResolveReference(ref).String(), nil
}
