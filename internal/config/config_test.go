// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.StreamIdleTimeout() != 90*time.Second {
		t.Errorf("StreamIdleTimeout() = %v, want 90s", cfg.Gateway.StreamIdleTimeout())
	}
	if cfg.Chat.DefaultModelID != 0 {
		t.Errorf("DefaultModelID = %d, want 0 (no baked-in model)", cfg.Chat.DefaultModelID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

// =============================================================================
// LOADING
// =============================================================================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
[gateway]
base_url = "https://api.example.com/"
stream_idle_timeout_secs = 0

[gateway.cookies]
SESSION = "abc"

[chat]
default_model_id = 3
language = "ko"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Gateway.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.StreamIdleTimeout() != 0 {
		t.Errorf("StreamIdleTimeout() = %v, want 0 (disabled)", cfg.Gateway.StreamIdleTimeout())
	}
	if cfg.Gateway.Cookies["SESSION"] != "abc" {
		t.Errorf("Cookies[SESSION] = %q, want abc", cfg.Gateway.Cookies["SESSION"])
	}
	if cfg.Chat.DefaultModelID != 3 {
		t.Errorf("DefaultModelID = %d, want 3", cfg.Chat.DefaultModelID)
	}
	// Keys absent from the file keep their defaults.
	if cfg.UI.WordWrap != 80 {
		t.Errorf("WordWrap = %d, want 80", cfg.UI.WordWrap)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	path := writeConfig(t, `
[chat]
language = "fr"

[log]
format = "xml"
`)

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("LoadFromPath() error = nil, want validation error")
	}
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %T does not wrap ValidateErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHATGATE_GATEWAY_BASE_URL", "http://localhost:9999")
	t.Setenv("CHATGATE_CHAT_DEFAULT_MODEL_ID", "7")
	t.Setenv("CHATGATE_GATEWAY_COOKIES", "SESSION:xyz")

	cfg := Default()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		t.Fatalf("ApplyEnvOverrides() error = %v", err)
	}
	if cfg.Gateway.BaseURL != "http://localhost:9999" {
		t.Errorf("BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Chat.DefaultModelID != 7 {
		t.Errorf("DefaultModelID = %d, want 7", cfg.Chat.DefaultModelID)
	}
	if cfg.Gateway.Cookies["SESSION"] != "xyz" {
		t.Errorf("Cookies[SESSION] = %q, want xyz", cfg.Gateway.Cookies["SESSION"])
	}
	// Untouched values survive.
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fail   bool
	}{
		{"defaults", func(*Config) {}, false},
		{"relative url", func(c *Config) { c.Gateway.BaseURL = "/api" }, true},
		{"ftp url", func(c *Config) { c.Gateway.BaseURL = "ftp://host" }, true},
		{"negative idle", func(c *Config) { c.Gateway.StreamIdleTimeoutSecs = -1 }, true},
		{"negative model", func(c *Config) { c.Chat.DefaultModelID = -2 }, true},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, true},
		{"narrow wrap", func(c *Config) { c.UI.WordWrap = 5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.fail {
				t.Errorf("Validate() = %v, want failure %v", err, tt.fail)
			}
		})
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Chat.RoomID = "room-1"
	cfg.Gateway.Cookies["SESSION"] = "s"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Chat.RoomID != "room-1" {
		t.Errorf("RoomID = %q, want room-1", loaded.Chat.RoomID)
	}
}

func TestGlobal(t *testing.T) {
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	custom := Default()
	custom.Chat.DefaultModelID = 42
	SetGlobal(custom)

	if got := Global().Chat.DefaultModelID; got != 42 {
		t.Errorf("Global().Chat.DefaultModelID = %d, want 42", got)
	}
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[chat]\ndefault_model_id = 1\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	if err := os.WriteFile(path, []byte("[chat]\ndefault_model_id = 9\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Chat.DefaultModelID != 9 {
			t.Errorf("reloaded DefaultModelID = %d, want 9", cfg.Chat.DefaultModelID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	<-done
}
