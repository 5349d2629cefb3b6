// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/config"
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/logging"
	chatui "github.com/jeranaias/chatgate/internal/ui/chat"
	"github.com/jeranaias/chatgate/internal/ui/styles"
)

// cachedAccount serves the chat header from the model cache.
type cachedAccount struct {
	client *gateway.Client
	models *gateway.ModelCache
}

func (c cachedAccount) GetBalance(ctx context.Context) (gateway.Balance, error) {
	return c.client.GetBalance(ctx)
}

func (c cachedAccount) ListModels(ctx context.Context) ([]gateway.AIModel, error) {
	return c.models.Models(ctx)
}

func (a *app) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "chat",
		Short:       "Open the full-screen chat (default)",
		Annotations: map[string]string{annotFileLog: "true"},
		RunE:        a.runChat,
	}
}

func (a *app) runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := a.gatewayClient()
	if err != nil {
		return err
	}
	// The view picks the first active model itself when none is configured.
	opts, err := a.controllerOptions(a.cfg.Chat.DefaultModelID)
	if err != nil {
		return err
	}

	m, err := chatui.New(chatui.Options{
		Chat:           opts,
		Account:        cachedAccount{client: client, models: a.models},
		Theme:          styles.NewThemeFor(a.cfg.UI.Theme),
		RenderMarkdown: a.cfg.UI.RenderMarkdown,
		WordWrap:       a.cfg.UI.WordWrap,
		LoadHistory:    true,
	})
	if err != nil {
		return err
	}
	defer m.Controller().Close()

	a.watchConfig(ctx)

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(a.in),
		tea.WithOutput(a.out),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return newCommandError("chat", "", err)
	}
	return nil
}

// watchConfig reloads the config file while the chat is open. Log level
// changes take effect at once; gateway settings apply to the next run.
func (a *app) watchConfig(ctx context.Context) {
	path := a.cfgPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	w, err := config.NewWatcher(path, func(cfg *config.Config, err error) {
		if err != nil {
			logging.Warnw("config reload rejected", "path", path, "error", err)
			return
		}
		logDir := cfg.Log.OutputPath
		if logDir == "" {
			logDir, _ = config.ConfigDir()
		}
		if err := logging.Init(cfg.Log.Level, cfg.Log.Format, logDir); err != nil {
			logging.Warnw("log reinit failed", "error", err)
		}
		config.SetGlobal(cfg)
		logging.Infow("config reloaded", "path", path)
	})
	if err != nil {
		logging.Warnw("config watch unavailable", "path", path, "error", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warnw("config watcher stopped", "error", err)
		}
	}()
}
