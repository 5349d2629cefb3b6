// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/config"
	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/model"
	"github.com/jeranaias/chatgate/internal/util"
)

const historyFileName = "repl_history"

// lineReader is the part of liner the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// historyLine wraps liner with a history file under the config directory.
type historyLine struct {
	*liner.State
	path string
}

func newHistoryLine() *historyLine {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	h := &historyLine{State: line}
	if dir, err := config.ConfigDir(); err == nil {
		h.path = filepath.Join(dir, historyFileName)
		if f, err := os.Open(h.path); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return h
}

// Close saves history and restores the terminal.
func (h *historyLine) Close() error {
	if h.path != "" {
		if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err == nil {
			if f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				h.WriteHistory(f)
				f.Close()
			}
		}
	}
	return h.State.Close()
}

// repl is one line-mode chat session.
type repl struct {
	a       *app
	ctrl    *corechat.Controller
	printer *streamPrinter
	notices *corechat.NoticeFormatter
	out     io.Writer
	errOut  io.Writer
}

func (a *app) replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Line-mode chat with input history",
		Long: `Line-mode chat. Replies stream as plain text, which suits terminals
where the full-screen view is unavailable.

Commands inside the REPL: /help, /attach <path>, /detach, /model <id>,
/balance, /room, /new, /quit. Ctrl+C stops a reply; Ctrl+C at the prompt
or Ctrl+D exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := newHistoryLine()
			defer line.Close()
			return a.runREPL(cmd.Context(), line)
		},
	}
}

func (a *app) runREPL(ctx context.Context, line lineReader) error {
	m, err := a.resolveModel(ctx)
	if err != nil {
		return newCommandError("repl", "select model", err)
	}
	opts, err := a.controllerOptions(m.ModelID)
	if err != nil {
		return err
	}

	r := &repl{
		a:       a,
		printer: newStreamPrinter(a.out, false),
		notices: opts.Notices,
		out:     a.out,
		errOut:  a.errOut,
	}
	opts.OnUpdate = r.printer.onUpdate
	opts.OnError = r.printer.onError
	if r.ctrl, err = corechat.NewController(opts); err != nil {
		return err
	}
	defer r.ctrl.Close()

	if a.cfg.Chat.RoomID != "" {
		if err := r.ctrl.LoadHistory(ctx); err != nil {
			fmt.Fprintln(r.errOut, errorStyle.Render(r.notices.Format(err)))
		}
	}
	r.refreshBalance(ctx)

	fmt.Fprintf(r.out, "%s %s\n", headingStyle.Render("chatgate"), mutedStyle.Render(fmt.Sprintf("model %s · /help for commands", m.DisplayName)))

	for {
		input, err := line.Prompt("chatgate> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			fmt.Fprintln(r.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(ctx, input); quit {
				return nil
			}
			continue
		}
		r.send(ctx, input)
	}
}

// send streams one reply. SIGINT during the stream stops only the reply.
func (r *repl) send(ctx context.Context, text string) {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.printer.reset()
	if err := sendAndWait(sendCtx, r.ctrl, text, nil); err != nil {
		if errors.Is(err, corechat.ErrEmptyMessage) {
			return
		}
		fmt.Fprintln(r.errOut, errorStyle.Render(r.notices.Format(err)))
		return
	}

	reply, _ := lastReply(r.ctrl)
	switch reply.State {
	case model.StateCompleted:
		fmt.Fprintln(r.out)
		if meta := reply.Metadata; meta != nil {
			fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("%d tokens", meta.InputTokens+meta.OutputTokens)))
		}
	case model.StateCancelled:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.errOut, warnStyle.Render(r.notices.Cancelled()))
	case model.StateIncomplete:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.errOut, warnStyle.Render("(reply ended early)"))
	case model.StateError:
		fmt.Fprintln(r.errOut, errorStyle.Render(reply.Content))
	default:
		if err := r.printer.err(); err != nil {
			fmt.Fprintln(r.errOut, errorStyle.Render(r.notices.Format(err)))
		}
	}
	r.refreshBalance(ctx)
}

func (r *repl) refreshBalance(ctx context.Context) {
	bal, err := r.a.client.GetBalance(ctx)
	if err != nil {
		logging.Debugw("balance refresh failed", "error", err)
		return
	}
	r.ctrl.SetBalance(bal.Balance)
}

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, input string) bool {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "q", "exit":
		return true
	case "help", "h", "?":
		fmt.Fprintln(r.out, `/attach <path>  queue an image for the next message
/detach         drop the queued image
/model <id>     switch model
/balance        show the wallet balance
/room           show the current room id
/new            start a new room
/quit           exit`)
	case "attach", "a":
		if len(args) == 0 {
			fmt.Fprintln(r.errOut, "usage: /attach <path>")
			return false
		}
		att, err := loadImage(strings.Join(args, " "))
		if err != nil {
			fmt.Fprintln(r.errOut, errorStyle.Render(err.Error()))
			return false
		}
		r.ctrl.Attach(att)
		fmt.Fprintf(r.out, "attached %s (%s)\n", filepath.Base(att.Path), util.FormatBytes(len(att.File.Data)))
	case "detach":
		r.ctrl.ClearAttachment()
	case "model", "m":
		if len(args) == 0 {
			fmt.Fprintf(r.out, "model %d\n", r.ctrl.ModelID())
			return false
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintln(r.errOut, "usage: /model <id>")
			return false
		}
		if m, ok, err := r.a.models.Lookup(ctx, id); err == nil && ok && !m.IsActive {
			fmt.Fprintln(r.errOut, errorStyle.Render(fmt.Sprintf("model %d is not active", id)))
			return false
		}
		r.ctrl.SetModel(id)
		fmt.Fprintf(r.out, "model %d\n", id)
	case "balance":
		bal, err := r.a.client.GetBalance(ctx)
		if err != nil {
			fmt.Fprintln(r.errOut, errorStyle.Render(r.notices.Format(err)))
			return false
		}
		r.ctrl.SetBalance(bal.Balance)
		fmt.Fprintf(r.out, "%s coins\n", bal.Balance.StringFixed(2))
	case "room":
		if id := r.ctrl.RoomID(); id != "" {
			fmt.Fprintln(r.out, id)
		} else {
			fmt.Fprintln(r.out, "no room yet")
		}
	case "new", "n":
		if err := r.ctrl.SwitchRoom(""); err != nil {
			fmt.Fprintln(r.errOut, errorStyle.Render(r.notices.Format(err)))
		}
	default:
		fmt.Fprintf(r.errOut, "unknown command /%s, try /help\n", name)
	}
	return false
}
