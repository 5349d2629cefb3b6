// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/chatgate/internal/util"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CHATGATE_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatgate configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Gateway is the remote chat backend.
	Gateway GatewayConfig `toml:"gateway" json:"gateway" envPrefix:"GATEWAY_"`

	// Chat holds conversation defaults.
	Chat ChatConfig `toml:"chat" json:"chat" envPrefix:"CHAT_"`

	Log     LogConfig     `toml:"log" json:"log" envPrefix:"LOG_"`
	UI      UIConfig      `toml:"ui" json:"ui" envPrefix:"UI_"`
	Storage StorageConfig `toml:"storage" json:"storage" envPrefix:"STORAGE_"`

	// Mock configures the bundled development gateway.
	Mock MockConfig `toml:"mock" json:"mock" envPrefix:"MOCK_"`
}

// GatewayConfig contains backend connection settings.
type GatewayConfig struct {
	// BaseURL is the scheme and host of the backend, without a trailing slash.
	BaseURL string `toml:"base_url" json:"base_url" env:"BASE_URL"`
	// Cookies are attached to every request (session credentials).
	Cookies map[string]string `toml:"cookies" json:"cookies" env:"COOKIES"`
	// RequestTimeoutSecs bounds non-streaming requests.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs" env:"REQUEST_TIMEOUT_SECS"`
	// StreamIdleTimeoutSecs aborts a stream that delivers no bytes for this long. 0 disables.
	StreamIdleTimeoutSecs int `toml:"stream_idle_timeout_secs" json:"stream_idle_timeout_secs" env:"STREAM_IDLE_TIMEOUT_SECS"`
	// RateLimit is the sustained request rate in requests per second. 0 disables.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst" env:"RATE_BURST"`
}

// RequestTimeout returns the non-streaming request timeout.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSecs) * time.Second
}

// StreamIdleTimeout returns the stream stall window, zero when disabled.
func (g GatewayConfig) StreamIdleTimeout() time.Duration {
	return time.Duration(g.StreamIdleTimeoutSecs) * time.Second
}

// ChatConfig contains conversation defaults.
type ChatConfig struct {
	// DefaultModelID is used when no model is chosen explicitly. 0 means unset.
	DefaultModelID int64 `toml:"default_model_id" json:"default_model_id" env:"DEFAULT_MODEL_ID"`
	// RoomID resumes an existing room. Empty creates one on first send.
	RoomID string `toml:"room_id" json:"room_id" env:"ROOM_ID"`
	// ChainResponses sends the previous aiResponseId with each message.
	ChainResponses bool `toml:"chain_responses" json:"chain_responses" env:"CHAIN_RESPONSES"`
	// Language selects error notice wording: "en" or "ko".
	Language string `toml:"language" json:"language" env:"LANGUAGE"`
	// ModelCacheTTLSecs controls how long the model list is reused.
	ModelCacheTTLSecs int `toml:"model_cache_ttl_secs" json:"model_cache_ttl_secs" env:"MODEL_CACHE_TTL_SECS"`
}

// ModelCacheTTL returns the model list cache lifetime.
func (c ChatConfig) ModelCacheTTL() time.Duration {
	return time.Duration(c.ModelCacheTTLSecs) * time.Second
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level" json:"level" env:"LEVEL"`
	Format string `toml:"format" json:"format" env:"FORMAT"`
	// OutputPath is a directory. Empty logs to stderr.
	OutputPath string `toml:"output_path" json:"output_path" env:"OUTPUT_PATH"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme" env:"THEME"`
	// WordWrap is the markdown wrap width.
	WordWrap int `toml:"word_wrap" json:"word_wrap" env:"WORD_WRAP"`
	// RenderMarkdown renders assistant replies with glamour.
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown" env:"RENDER_MARKDOWN"`
}

// StorageConfig contains local transcript storage settings.
type StorageConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" env:"ENABLED"`
	// Path is the sqlite database file. Empty uses ~/.chatgate/transcripts.db.
	Path string `toml:"path" json:"path" env:"PATH"`
}

// MockConfig configures `chatgate mock-server`.
type MockConfig struct {
	Addr             string `toml:"addr" json:"addr" env:"ADDR"`
	DeltaDelayMillis int    `toml:"delta_delay_millis" json:"delta_delay_millis" env:"DELTA_DELAY_MILLIS"`
	// Balance is the starting wallet balance as a decimal string.
	Balance string `toml:"balance" json:"balance" env:"BALANCE"`
}

// DeltaDelay returns the pause between streamed characters.
func (m MockConfig) DeltaDelay() time.Duration {
	return time.Duration(m.DeltaDelayMillis) * time.Millisecond
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
// No model is preselected: the model list belongs to the backend.
func Default() *Config {
	return &Config{
		Version: "1",
		Gateway: GatewayConfig{
			BaseURL:               "http://127.0.0.1:8080",
			Cookies:               map[string]string{},
			RequestTimeoutSecs:    30,
			StreamIdleTimeoutSecs: 90,
			RateLimit:             5,
			RateBurst:             10,
		},
		Chat: ChatConfig{
			Language:          "en",
			ChainResponses:    true,
			ModelCacheTTLSecs: 300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		UI: UIConfig{
			Theme:          "auto",
			WordWrap:       80,
			RenderMarkdown: true,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		Mock: MockConfig{
			Addr:             "127.0.0.1:8080",
			DeltaDelayMillis: 20,
			Balance:          "100.00",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatgate configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatgate"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// TranscriptPath resolves the transcript database location.
func (c *Config) TranscriptPath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts.db"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.chatgate/config.toml if present, then applies environment
// overrides and validates. A missing file is not an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays CHATGATE_* variables. Unset variables leave
// the current value untouched.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = d.Gateway.BaseURL
	}
	c.Gateway.BaseURL = strings.TrimRight(c.Gateway.BaseURL, "/")
	if c.Gateway.Cookies == nil {
		c.Gateway.Cookies = map[string]string{}
	}
	if c.Gateway.RequestTimeoutSecs == 0 {
		c.Gateway.RequestTimeoutSecs = d.Gateway.RequestTimeoutSecs
	}
	if c.Gateway.RateLimit > 0 && c.Gateway.RateBurst == 0 {
		c.Gateway.RateBurst = 1
	}
	if c.Chat.Language == "" {
		c.Chat.Language = d.Chat.Language
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.Mock.Addr == "" {
		c.Mock.Addr = d.Mock.Addr
	}
	if c.Mock.Balance == "" {
		c.Mock.Balance = d.Mock.Balance
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration with 0600 permissions, since the
// cookie table holds session credentials.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatgate configuration file\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// RELIABILITY: a crash mid-write must not leave a truncated config
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if u, err := url.Parse(c.Gateway.BaseURL); err != nil || u.Host == "" {
		add("gateway.base_url", "must be an absolute URL")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("gateway.base_url", "scheme must be http or https")
	}
	if c.Gateway.RequestTimeoutSecs < 0 {
		add("gateway.request_timeout_secs", "must not be negative")
	}
	if c.Gateway.StreamIdleTimeoutSecs < 0 {
		add("gateway.stream_idle_timeout_secs", "must not be negative")
	}
	if c.Gateway.RateLimit < 0 {
		add("gateway.rate_limit", "must not be negative")
	}
	if c.Gateway.RateBurst < 0 {
		add("gateway.rate_burst", "must not be negative")
	}

	if c.Chat.DefaultModelID < 0 {
		add("chat.default_model_id", "must not be negative")
	}
	switch c.Chat.Language {
	case "en", "ko":
	default:
		add("chat.language", fmt.Sprintf("unsupported language %q (want en or ko)", c.Chat.Language))
	}
	if c.Chat.ModelCacheTTLSecs < 0 {
		add("chat.model_cache_ttl_secs", "must not be negative")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format", fmt.Sprintf("unsupported format %q (want json or console)", c.Log.Format))
	}

	switch c.UI.Theme {
	case "auto", "dark", "light":
	default:
		add("ui.theme", fmt.Sprintf("unsupported theme %q", c.UI.Theme))
	}
	if c.UI.WordWrap < 20 || c.UI.WordWrap > 400 {
		add("ui.word_wrap", "must be between 20 and 400")
	}

	if c.Mock.DeltaDelayMillis < 0 {
		add("mock.delta_delay_millis", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
