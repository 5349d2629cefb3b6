// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/ui/styles"
)

// requestTimeout bounds the view's own gateway calls (balance, models, history).
const requestTimeout = 15 * time.Second

// Account is the optional wallet and model source shown in the header.
type Account interface {
	GetBalance(ctx context.Context) (gateway.Balance, error)
	ListModels(ctx context.Context) ([]gateway.AIModel, error)
}

// Options configures the chat view.
type Options struct {
	// Chat configures the underlying controller. OnUpdate and OnError are
	// replaced by the view; set them here only for tests that bypass New.
	Chat corechat.Options

	// Account supplies balance and model names. Nil hides them.
	Account Account

	// Theme defaults to styles.NewTheme().
	Theme *styles.Theme

	// RenderMarkdown renders completed assistant replies with glamour.
	RenderMarkdown bool

	// WordWrap caps the markdown width. Zero follows the window.
	WordWrap int

	// LoadHistory fetches the room's messages at startup when Chat.RoomID is set.
	LoadHistory bool
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctrl    *corechat.Controller
	bridge  *bridge
	account Account
	log     *zap.SugaredLogger

	noticeFmt *corechat.NoticeFormatter

	theme    *styles.Theme
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *markdownRenderer

	width, height int
	ready         bool
	loadHistory   bool

	// Redraw throttling
	dirty          bool
	frameScheduled bool

	// Header data
	models  map[int64]gateway.AIModel
	balance *decimal.Decimal

	// notes are local lines shown below the transcript (command output).
	notes    []string
	status   string
	errText  string
	showHelp bool
	quitting bool
}

// New builds the controller and the view around it.
func New(opts Options) (Model, error) {
	b := newBridge()

	copts := opts.Chat
	copts.OnUpdate = b.onUpdate
	copts.OnError = b.onError
	ctrl, err := corechat.NewController(copts)
	if err != nil {
		return Model{}, err
	}

	notices := copts.Notices
	if notices == nil {
		notices = corechat.NewNoticeFormatter("en")
	}

	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = ""
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = DefaultKeyMap().Newline
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	var renderer *markdownRenderer
	if opts.RenderMarkdown {
		renderer = newMarkdownRenderer(theme.GlamourStyle, opts.WordWrap)
	}

	return Model{
		ctrl:        ctrl,
		bridge:      b,
		account:     opts.Account,
		log:         logging.Named("tui"),
		noticeFmt:   notices,
		theme:       theme,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		viewport:    viewport.New(80, 20),
		input:       ta,
		spinner:     sp,
		renderer:    renderer,
		loadHistory: opts.LoadHistory && copts.RoomID != "",
		models:      make(map[int64]gateway.AIModel),
	}, nil
}

// Controller exposes the underlying controller.
func (m Model) Controller() *corechat.Controller {
	return m.ctrl
}

// Init starts listening to the controller and fetches header data.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		m.bridge.listen(),
		m.fetchBalance(),
		m.fetchModels(false),
	}
	if m.loadHistory {
		cmds = append(cmds, m.fetchHistory())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// ASYNC COMMANDS
// =============================================================================

func (m Model) fetchBalance() tea.Cmd {
	if m.account == nil {
		return nil
	}
	account := m.account
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		b, err := account.GetBalance(ctx)
		return balanceMsg{balance: b.Balance, err: err}
	}
}

func (m Model) fetchModels(show bool) tea.Cmd {
	if m.account == nil {
		return nil
	}
	account := m.account
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list, err := account.ListModels(ctx)
		return modelsMsg{models: list, show: show, err: err}
	}
}

func (m Model) fetchHistory() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return historyMsg{err: ctrl.LoadHistory(ctx)}
	}
}

func (m Model) uploadPending() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := ctrl.Upload(ctx)
		if errors.Is(err, corechat.ErrNoAttachment) {
			err = nil
		}
		return uploadMsg{err: err}
	}
}

// modelName returns the display name for id, or empty if unknown.
func (m Model) modelName(id int64) string {
	if mdl, ok := m.models[id]; ok {
		if mdl.DisplayName != "" {
			return mdl.DisplayName
		}
		return mdl.ModelName
	}
	return ""
}
