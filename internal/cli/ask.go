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
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/model"
)

// errIncompleteReply is returned when the stream closed before completion.
var errIncompleteReply = errors.New("reply ended before the gateway completed it")

// askResult is the --json payload of ask.
type askResult struct {
	RoomID        string `json:"roomId"`
	ModelID       int64  `json:"modelId"`
	Reply         string `json:"reply"`
	State         string `json:"state"`
	UserMessageID string `json:"userMessageId,omitempty"`
	AIResponseID  string `json:"aiResponseId,omitempty"`
	InputTokens   int    `json:"inputTokens,omitempty"`
	OutputTokens  int    `json:"outputTokens,omitempty"`
	CoinCount     string `json:"coinCount,omitempty"`
}

func (a *app) askCommand() *cobra.Command {
	var (
		imagePath string
		markdown  bool
	)
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send one message and stream the reply to stdout",
		Long: `Send one message and stream the reply to stdout.

The prompt is read from stdin when no arguments are given. Without --room
a new room is created and its id is printed to stderr so the conversation
can be continued. Ctrl+C stops the reply and keeps what arrived.`,
		Example: `  chatgate ask "hello"
  chatgate ask --image photo.png "what is in this picture?"
  echo "summarize this" | chatgate ask --room 3f2a...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := a.readPrompt(args)
			if err != nil {
				return err
			}
			var att *corechat.Attachment
			if imagePath != "" {
				if att, err = loadImage(imagePath); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.ask(ctx, cmd, prompt, att, markdown && isTerminal(a.out))
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "attach an image file")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the finished reply as markdown on a terminal")
	return cmd
}

// readPrompt joins args, or reads stdin when there are none.
func (a *app) readPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isTerminal(a.in) {
		return "", nil
	}
	data, err := io.ReadAll(a.in)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// loadImage reads path and rejects anything that is not an image.
func loadImage(path string) (*corechat.Attachment, error) {
	att, err := corechat.AttachmentFromPath(path)
	if err != nil {
		return nil, err
	}
	if !gateway.IsImageType(att.File.ContentType) {
		return nil, usagef("only images can be attached: %s is %s", path, att.File.ContentType)
	}
	return att, nil
}

func (a *app) ask(ctx context.Context, cmd *cobra.Command, prompt string, att *corechat.Attachment, markdown bool) error {
	if strings.TrimSpace(prompt) == "" && att == nil {
		return newCommandError("ask", "", corechat.ErrEmptyMessage)
	}

	m, err := a.resolveModel(ctx)
	if err != nil {
		return newCommandError("ask", "select model", err)
	}
	opts, err := a.controllerOptions(m.ModelID)
	if err != nil {
		return err
	}

	printer := newStreamPrinter(a.out, a.jsonOut || markdown)
	opts.OnUpdate = printer.onUpdate
	opts.OnError = printer.onError
	ctrl, err := corechat.NewController(opts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if bal, err := a.client.GetBalance(ctx); err == nil {
		ctrl.SetBalance(bal.Balance)
	}

	if err := sendAndWait(ctx, ctrl, prompt, att); err != nil {
		return newCommandError("ask", "", err)
	}

	reply, _ := lastReply(ctrl)
	if err := printer.err(); err != nil {
		return newCommandError("ask", "", err)
	}

	if a.jsonOut {
		return writeJSON(a.out, NewJSONResponse(cmd.CommandPath(), buildAskResult(ctrl, m, reply)))
	}
	if markdown && reply.State == model.StateCompleted {
		fmt.Fprint(a.out, renderMarkdown(reply.Content, terminalWidth(a.out)))
	} else if reply.Text() != "" {
		fmt.Fprintln(a.out)
	}

	switch reply.State {
	case model.StateCancelled:
		fmt.Fprintln(a.errOut, warnStyle.Render("[Stopped]"))
	case model.StateIncomplete:
		return newCommandError("ask", "", errIncompleteReply)
	}
	if a.cfg.Chat.RoomID == "" && ctrl.RoomID() != "" {
		fmt.Fprintln(a.errOut, mutedStyle.Render("room: "+ctrl.RoomID()))
	}
	return nil
}

func buildAskResult(ctrl *corechat.Controller, m gateway.AIModel, reply model.Message) askResult {
	res := askResult{
		RoomID:  ctrl.RoomID(),
		ModelID: m.ModelID,
		Reply:   reply.Text(),
		State:   reply.State.String(),
	}
	if meta := reply.Metadata; meta != nil {
		res.UserMessageID = meta.UserMessageID
		res.AIResponseID = meta.AIResponseID
		res.InputTokens = meta.InputTokens
		res.OutputTokens = meta.OutputTokens
		res.CoinCount = m.EstimateCost(meta.InputTokens, meta.OutputTokens).String()
	}
	return res
}
