// Package config loads and validates netcapture configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/croque-scale/netcapture/internal/capture"
)

// Browser provider names accepted in configuration.
const (
	ProviderPlaywright = "playwright"
	ProviderChromedp   = "chromedp"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Storage StorageConfig `mapstructure:"storage"`
	Wait    WaitConfig    `mapstructure:"wait"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Output  OutputConfig  `mapstructure:"output"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrowserConfig selects and configures the browser automation provider.
type BrowserConfig struct {
	Provider          string `mapstructure:"provider"`
	SSEURL            string `mapstructure:"sse_url"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig describes how to spawn the storage provider subprocess.
type StorageConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// WaitConfig controls the post-navigation wait strategy.
type WaitConfig struct {
	Mode           string  `mapstructure:"mode"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
}

// FilterConfig holds the client-side record filters.
type FilterConfig struct {
	URLPattern string `mapstructure:"url_pattern"`
	Method     string `mapstructure:"method"`
	StatusMin  int    `mapstructure:"status_min"`
	StatusMax  int    `mapstructure:"status_max"`
}

// OutputConfig sets the JSONL output path template.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// RetryConfig configures tool call retry behavior.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from defaults, an optional config file, NETCAPTURE_*
// environment variables, and (when non-nil) command-line flags, in ascending
// precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NETCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.provider", ProviderPlaywright)
	v.SetDefault("browser.sse_url", "http://127.0.0.1:8931/sse")
	v.SetDefault("browser.user_agent", "netcapture/0.1")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("storage.command", "npx")
	v.SetDefault("storage.args", []string{"@agent-infra/mcp-server-filesystem@latest"})
	v.SetDefault("wait.mode", string(capture.WaitModeNetworkIdle))
	v.SetDefault("wait.timeout_seconds", 5)
	v.SetDefault("filter.status_min", capture.DefaultStatusMin)
	v.SetDefault("filter.status_max", capture.DefaultStatusMax)
	v.SetDefault("output.path", "~/mcp_captures/captures/capture_{ts}.jsonl")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 250)
	v.SetDefault("retry.backoff_max_ms", 5000)
	v.SetDefault("logging.development", true)
}

// flagBindings maps capture command flags onto config keys so explicit flags
// win over file and environment values.
var flagBindings = map[string]string{
	"browser.provider":    "provider",
	"browser.sse_url":     "sse",
	"storage.command":     "fs-cmd",
	"storage.args":        "fs-args",
	"wait.mode":           "wait-mode",
	"wait.timeout_seconds": "wait",
	"filter.url_pattern":  "filter-url",
	"filter.method":       "filter-method",
	"filter.status_min":   "status-min",
	"filter.status_max":   "status-max",
	"output.path":         "out",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Browser.Provider {
	case ProviderPlaywright, ProviderChromedp:
	default:
		return fmt.Errorf("browser.provider must be %q or %q", ProviderPlaywright, ProviderChromedp)
	}
	if c.Browser.Provider == ProviderPlaywright && c.Browser.SSEURL == "" {
		return fmt.Errorf("browser.sse_url must be set for the playwright provider")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Storage.Command == "" {
		return fmt.Errorf("storage.command must be set")
	}
	switch capture.WaitMode(c.Wait.Mode) {
	case capture.WaitModeNetworkIdle, capture.WaitModeSleep:
	default:
		return fmt.Errorf("wait.mode must be %q or %q", capture.WaitModeNetworkIdle, capture.WaitModeSleep)
	}
	if c.Wait.TimeoutSeconds <= 0 {
		return fmt.Errorf("wait.timeout_seconds must be > 0")
	}
	if c.Filter.URLPattern != "" {
		if _, err := regexp.Compile(c.Filter.URLPattern); err != nil {
			return fmt.Errorf("filter.url_pattern: %w", err)
		}
	}
	if c.Filter.StatusMin < 0 || c.Filter.StatusMax < 0 {
		return fmt.Errorf("filter status bounds must be >= 0")
	}
	if c.Filter.StatusMin > c.Filter.StatusMax {
		return fmt.Errorf("filter.status_min %d exceeds filter.status_max %d", c.Filter.StatusMin, c.Filter.StatusMax)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must be set")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	return nil
}

// WaitTimeout converts the configured wait seconds into a duration.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Wait.TimeoutSeconds * float64(time.Second))
}

// NavTimeout converts the configured navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// RetryPolicy converts the retry section into a capture.RetryPolicy.
func (c Config) RetryPolicy() capture.RetryPolicy {
	return capture.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BackoffInitialMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond,
		Factor:      2,
	}
}

// CaptureRequest assembles the immutable per-run request for url.
func (c Config) CaptureRequest(url string) capture.Request {
	return capture.Request{
		URL:         url,
		WaitMode:    capture.WaitMode(c.Wait.Mode),
		WaitTimeout: c.WaitTimeout(),
		OutputPath:  c.Output.Path,
		URLPattern:  c.Filter.URLPattern,
		Method:      c.Filter.Method,
		StatusMin:   c.Filter.StatusMin,
		StatusMax:   c.Filter.StatusMax,
	}
}
