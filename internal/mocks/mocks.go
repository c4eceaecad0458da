// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/captchafill/internal/browser"
	"github.com/xkilldash9x/captchafill/internal/captcha"
	"github.com/xkilldash9x/captchafill/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Recognition() config.RecognitionConfig {
	args := m.Called()
	return args.Get(0).(config.RecognitionConfig)
}

func (m *MockConfig) Captcha() config.CaptchaConfig {
	args := m.Called()
	return args.Get(0).(config.CaptchaConfig)
}

// -- Page Mock --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

var _ browser.Page = (*MockPage)(nil)

func (m *MockPage) Exists(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) ImageURL(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Fetch(ctx context.Context, url string) (*browser.FetchResult, error) {
	args := m.Called(ctx, url)
	var res *browser.FetchResult
	if r := args.Get(0); r != nil {
		res = r.(*browser.FetchResult)
	}
	return res, args.Error(1)
}

func (m *MockPage) CanvasPNG(ctx context.Context, selector string) ([]byte, error) {
	args := m.Called(ctx, selector)
	var data []byte
	if d := args.Get(0); d != nil {
		data = d.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockPage) SetValue(ctx context.Context, selector, value string) (bool, error) {
	args := m.Called(ctx, selector, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Click(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) ObserveMutations(ctx context.Context) (<-chan struct{}, error) {
	args := m.Called(ctx)
	var ch <-chan struct{}
	switch c := args.Get(0).(type) {
	case chan struct{}:
		ch = c
	case <-chan struct{}:
		ch = c
	}
	return ch, args.Error(1)
}

// -- Recognizer Mock --

// MockRecognizer mocks the recognition client as used by the solver.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Recognize(ctx context.Context, img *captcha.Image, mode captcha.Mode, length int) (string, error) {
	args := m.Called(ctx, img, mode, length)
	return args.String(0), args.Error(1)
}
