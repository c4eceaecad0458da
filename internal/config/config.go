// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/captchafill/internal/captcha"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. CAPTCHAFILL_CAPTCHA_MODE.
const EnvPrefix = "CAPTCHAFILL"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Recognition() RecognitionConfig
	Captcha() CaptchaConfig
}

// Config holds the entire application configuration.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	RecognitionCfg RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`
	CaptchaCfg     CaptchaConfig     `mapstructure:"captcha" yaml:"captcha"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Recognition() RecognitionConfig { return c.RecognitionCfg }
func (c *Config) Captcha() CaptchaConfig         { return c.CaptchaCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance hosting the target page.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// RemoteURL attaches to an already running browser (its DevTools websocket URL)
	// instead of launching one, so the page's existing login session is reused.
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// RecognitionConfig points at the external text recognition service.
type RecognitionConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// RateLimit caps recognition requests per second. Zero disables the limit.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// CaptchaConfig is the static solve policy: where the challenge lives on the page,
// how recognized text is validated, and how failed attempts are retried.
type CaptchaConfig struct {
	ImageSelector   string        `mapstructure:"image_selector" yaml:"image_selector"`
	CanvasSelector  string        `mapstructure:"canvas_selector" yaml:"canvas_selector"`
	InputSelector   string        `mapstructure:"input_selector" yaml:"input_selector"`
	RefreshSelector string        `mapstructure:"refresh_selector" yaml:"refresh_selector"`
	SubmitSelector  string        `mapstructure:"submit_selector" yaml:"submit_selector"`
	Mode            captcha.Mode  `mapstructure:"mode" yaml:"mode"`
	Length          int           `mapstructure:"length" yaml:"length"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MinTextLength   int           `mapstructure:"min_text_length" yaml:"min_text_length"`
	MaxTextLength   int           `mapstructure:"max_text_length" yaml:"max_text_length"`
	AutoSubmit      bool          `mapstructure:"auto_submit" yaml:"auto_submit"`
	Verbose         bool          `mapstructure:"verbose" yaml:"verbose"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "captchafill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Recognition --
	v.SetDefault("recognition.endpoint", "http://127.0.0.1:65435/solve")
	v.SetDefault("recognition.rate_limit", 0)

	// -- Captcha --
	v.SetDefault("captcha.image_selector",
		"body > table:nth-child(2) > tbody > tr > td:nth-child(1) > table > tbody > tr > td > div > div:nth-child(1) > form > img")
	v.SetDefault("captcha.canvas_selector", "canvas.captcha")
	v.SetDefault("captcha.input_selector",
		"body > table:nth-child(2) > tbody > tr > td:nth-child(1) > table > tbody > tr > td > div > div:nth-child(1) > form > input:nth-child(13)")
	v.SetDefault("captcha.refresh_selector", "")
	v.SetDefault("captcha.submit_selector", "")
	v.SetDefault("captcha.mode", string(captcha.ModeAlnum))
	v.SetDefault("captcha.length", 0)
	v.SetDefault("captcha.max_retries", 3)
	v.SetDefault("captcha.retry_delay", "1s")
	v.SetDefault("captcha.min_text_length", 3)
	v.SetDefault("captcha.max_text_length", 12)
	v.SetDefault("captcha.auto_submit", false)
	v.SetDefault("captcha.verbose", true)
}

// ConfigureSources points viper at the config file (explicit path, or config.yaml in the
// working directory or ~/.captchafill) and enables CAPTCHAFILL_* environment overrides.
func ConfigureSources(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.captchafill")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.BrowserCfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.BrowserCfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("invalid browser.user_data_dir: %w", err)
		}
		cfg.BrowserCfg.UserDataDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.RecognitionCfg.Validate(); err != nil {
		return fmt.Errorf("recognition configuration invalid: %w", err)
	}
	if err := c.CaptchaCfg.Validate(); err != nil {
		return fmt.Errorf("captcha configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative")
	}
	return nil
}

// Validate checks the recognition endpoint and rate limit.
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", r.Endpoint)
	}
	if r.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	return nil
}

// Validate checks the solve policy.
func (c *CaptchaConfig) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("mode must be one of %s, got %q", strings.Join(captcha.ModeNames(), ", "), c.Mode)
	}
	if c.InputSelector == "" {
		return fmt.Errorf("input_selector is required")
	}
	if c.ImageSelector == "" && c.CanvasSelector == "" {
		return fmt.Errorf("at least one of image_selector or canvas_selector is required")
	}
	if c.Length < 0 {
		return fmt.Errorf("length must be >= 0")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be a positive integer")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if c.MinTextLength < 1 || c.MinTextLength > c.MaxTextLength {
		return fmt.Errorf("text length bounds must satisfy 1 <= min_text_length <= max_text_length")
	}
	return nil
}
