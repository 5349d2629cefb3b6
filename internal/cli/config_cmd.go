// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/config"
)

const redacted = "********"

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with cookies redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				shown := redactConfig(a.cfg)
				if a.jsonOut {
					return writeJSON(a.out, NewJSONResponse(cmd.CommandPath(), shown))
				}
				return toml.NewEncoder(a.out).Encode(shown)
			},
		},
		a.configInitCommand(),
		&cobra.Command{
			Use:         "path",
			Short:       "Print the configuration file location",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{annotSkipConfig: "true"},
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFile()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) configInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return usagef("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return &configError{err: err}
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return &configError{err: err}
			}
			fmt.Fprintln(a.out, okStyle.Render("Wrote "+path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) configFile() (string, error) {
	if a.cfgPath != "" {
		return a.cfgPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &configError{err: err}
	}
	return path, nil
}

// redactConfig copies cfg with cookie values masked.
func redactConfig(cfg *config.Config) config.Config {
	shown := *cfg
	shown.Gateway.Cookies = make(map[string]string, len(cfg.Gateway.Cookies))
	for name := range cfg.Gateway.Cookies {
		shown.Gateway.Cookies[name] = redacted
	}
	return shown
}

// printConfigSummary is used by version --verbose.
func printConfigSummary(w io.Writer, cfg *config.Config) {
	field(w, "Gateway", cfg.Gateway.BaseURL)
	if cfg.Chat.DefaultModelID > 0 {
		field(w, "Model", fmt.Sprint(cfg.Chat.DefaultModelID))
	}
	if cfg.Chat.RoomID != "" {
		field(w, "Room", cfg.Chat.RoomID)
	}
	field(w, "Language", cfg.Chat.Language)
	field(w, "Transcripts", fmt.Sprint(cfg.Storage.Enabled))
}
