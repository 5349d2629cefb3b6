// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/config"
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/storage"
)

// Annotation keys understood by app.setup.
const (
	// annotSkipConfig commands run without loading config or a client.
	annotSkipConfig = "chatgate/skip-config"
	// annotFileLog commands own the terminal, so logs go to a file.
	annotFileLog = "chatgate/file-log"
)

// app is the state shared by every command of one invocation.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// Persistent flags.
	cfgPath  string
	baseURL  string
	modelID  int64
	roomID   string
	lang     string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	client *gateway.Client
	models *gateway.ModelCache
	store  *storage.TranscriptStore
}

// Execute runs the command tree against the process's standard streams and
// returns the exit status.
func Execute() int {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[ERROR]"), err)
	}
	logging.Sync()
	return ExitCode(err)
}

// NewRootCommand builds a fresh command tree bound to the given streams.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "chatgate",
		Short: "Terminal client for a streaming chat gateway",
		Long: `chatgate talks to a chat gateway that streams replies over
server-sent events. With no subcommand it opens the full-screen chat.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Annotations:       map[string]string{annotFileLog: "true"},
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: a.runChat,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ~/.chatgate/config.toml)")
	pf.StringVar(&a.baseURL, "base-url", "", "gateway base URL")
	pf.Int64VarP(&a.modelID, "model", "m", 0, "model id")
	pf.StringVarP(&a.roomID, "room", "r", "", "chat room id to resume")
	pf.StringVar(&a.lang, "lang", "", "notice language: en or ko")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		a.chatCommand(),
		a.askCommand(),
		a.replCommand(),
		a.modelsCommand(),
		a.balanceCommand(),
		a.walletCommand(),
		a.transactionCommand(),
		a.paymentsCommand(),
		a.whoamiCommand(),
		a.statsCommand(),
		a.usageCommand(),
		a.pricingCommand(),
		a.roomsCommand(),
		a.historyCommand(),
		a.messageCommand(),
		a.transcriptsCommand(),
		a.configCommand(),
		a.mockServerCommand(),
		a.versionCommand(),
	)
	return root
}

// =============================================================================
// SETUP
// =============================================================================

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotSkipConfig] == "true" {
		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return &configError{err: err}
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return &configError{err: err}
	}
	a.cfg = cfg
	config.SetGlobal(cfg)

	logDir := cfg.Log.OutputPath
	if logDir == "" && cmd.Annotations[annotFileLog] == "true" {
		if dir, err := config.ConfigDir(); err == nil {
			logDir = dir
		}
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format, logDir); err != nil {
		return &configError{err: err}
	}
	logging.Debugw("config loaded", "command", cmd.CommandPath(), "base_url", cfg.Gateway.BaseURL)
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.cfgPath != "" {
		return config.LoadFromPath(a.cfgPath)
	}
	return config.Load()
}

// applyFlags overlays explicitly set persistent flags on cfg.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.Gateway.BaseURL = a.baseURL
	}
	if flags.Changed("model") {
		cfg.Chat.DefaultModelID = a.modelID
	}
	if flags.Changed("room") {
		cfg.Chat.RoomID = a.roomID
	}
	if flags.Changed("lang") {
		cfg.Chat.Language = a.lang
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
}

func (a *app) teardown() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warnw("close transcript store", "error", err)
		}
		a.store = nil
	}
}

// =============================================================================
// SHARED RESOURCES
// =============================================================================

// gatewayClient returns the client for the configured backend, creating it once.
func (a *app) gatewayClient() (*gateway.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	gw := a.cfg.Gateway
	c, err := gateway.NewClient(gw.BaseURL)
	if err != nil {
		return nil, &configError{err: err}
	}
	c.WithTimeout(gw.RequestTimeout()).
		WithIdleTimeout(gw.StreamIdleTimeout()).
		WithCookies(gw.Cookies)
	if gw.RateLimit > 0 {
		c.WithRateLimit(gw.RateLimit, gw.RateBurst)
	}
	a.client = c
	a.models = gateway.NewModelCache(c, a.cfg.Chat.ModelCacheTTL())
	return c, nil
}

// recorder opens the transcript store when storage is enabled. A nil
// Recorder is returned when it is disabled.
func (a *app) recorder() (corechat.Recorder, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := a.transcripts()
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) transcripts() (*storage.TranscriptStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.cfg.TranscriptPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// resolveModel picks the model for a send: the configured one when set,
// otherwise the first active model of the registry.
func (a *app) resolveModel(ctx context.Context) (gateway.AIModel, error) {
	if _, err := a.gatewayClient(); err != nil {
		return gateway.AIModel{}, err
	}
	if id := a.cfg.Chat.DefaultModelID; id > 0 {
		m, ok, err := a.models.Lookup(ctx, id)
		if err != nil {
			return gateway.AIModel{}, err
		}
		if !ok {
			return gateway.AIModel{}, fmt.Errorf("model %d: %w", id, gateway.ErrModelNotFound)
		}
		if !m.IsActive {
			return gateway.AIModel{}, fmt.Errorf("model %d: %w", id, gateway.ErrModelNotActive)
		}
		return m, nil
	}

	active, err := a.models.Active(ctx)
	if err != nil {
		return gateway.AIModel{}, err
	}
	if len(active) == 0 {
		return gateway.AIModel{}, fmt.Errorf("no active models on %s", a.cfg.Gateway.BaseURL)
	}
	return active[0], nil
}

// controllerOptions builds the session controller settings shared by the
// chat, ask and repl commands.
func (a *app) controllerOptions(modelID int64) (corechat.Options, error) {
	client, err := a.gatewayClient()
	if err != nil {
		return corechat.Options{}, err
	}
	rec, err := a.recorder()
	if err != nil {
		return corechat.Options{}, err
	}
	return corechat.Options{
		RoomID:         a.cfg.Chat.RoomID,
		ModelID:        modelID,
		Gateway:        client,
		Notices:        corechat.NewNoticeFormatter(a.cfg.Chat.Language),
		Recorder:       rec,
		ChainResponses: a.cfg.Chat.ChainResponses,
		Logger:         logging.Named("chat"),
	}, nil
}

// emit prints data as a JSON envelope when --json is set, otherwise calls
// text.
func (a *app) emit(cmd *cobra.Command, data interface{}, text func(w io.Writer)) error {
	if a.jsonOut {
		return writeJSON(a.out, NewJSONResponse(cmd.CommandPath(), data))
	}
	text(a.out)
	return nil
}
