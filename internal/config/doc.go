// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatgate.
//
// Settings live in a TOML file, can be overridden from the environment, and
// are validated before use. Nothing in the chat core reads configuration
// ambiently: callers load a Config and inject the values they need.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GatewayConfig: Backend URL, session cookies, timeouts, rate limit
//   - ChatConfig: Default model, room, notice language
//   - Watcher: Hot reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATGATE_*)
//   - ~/.chatgate/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	base := cfg.Gateway.BaseURL
//	idle := cfg.Gateway.StreamIdleTimeout()
package config
