// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/storage"
)

// transcriptsCommand works on the local sqlite copy of finished exchanges.
// It reads the store whether or not recording is enabled.
func (a *app) transcriptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transcripts",
		Aliases: []string{"tx"},
		Short:   "Browse locally recorded conversations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recorded rooms, most recent first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.transcripts()
				if err != nil {
					return err
				}
				metas, err := store.List(cmd.Context())
				if err != nil {
					return newCommandError("transcripts", "list", err)
				}
				return a.emit(cmd, metas, func(w io.Writer) {
					fmt.Fprint(w, storage.FormatSessionList(metas))
				})
			},
		},
		a.transcriptsSearchCommand(),
		&cobra.Command{
			Use:   "show <roomId>",
			Short: "Print a recorded conversation as Markdown",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				conv, err := a.loadTranscript(cmd, args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd, conv, func(w io.Writer) {
					if isTerminal(w) {
						fmt.Fprint(w, renderMarkdown(conv.ExportMarkdown(), terminalWidth(w)))
						return
					}
					fmt.Fprint(w, conv.ExportMarkdown())
				})
			},
		},
		&cobra.Command{
			Use:   "export <roomId> <file>",
			Short: "Write a recorded conversation to a .md or .json file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				conv, err := a.loadTranscript(cmd, args[0])
				if err != nil {
					return err
				}
				if err := conv.WriteExport(args[1]); err != nil {
					return newCommandError("transcripts", "export", err)
				}
				return a.emit(cmd, map[string]string{"roomId": args[0], "path": args[1]}, func(w io.Writer) {
					fmt.Fprintln(w, okStyle.Render("Exported to "+args[1]))
				})
			},
		},
		&cobra.Command{
			Use:   "delete <roomId>",
			Short: "Forget a recorded conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.transcripts()
				if err != nil {
					return err
				}
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return newCommandError("transcripts", "delete", err)
				}
				fmt.Fprintln(a.out, okStyle.Render("Deleted transcript "+args[0]))
				return nil
			},
		},
		a.transcriptsClearCommand(),
	)
	return cmd
}

func (a *app) transcriptsSearchCommand() *cobra.Command {
	var content bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find recorded rooms by summary, or by message text with --content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.transcripts()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			var metas []storage.ConversationMeta
			if content {
				metas, err = store.SearchMessages(cmd.Context(), query)
			} else {
				metas, err = store.Search(cmd.Context(), query)
			}
			if err != nil {
				return newCommandError("transcripts", "search", err)
			}
			return a.emit(cmd, metas, func(w io.Writer) {
				fmt.Fprint(w, storage.FormatSessionList(metas))
			})
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, "search message text")
	return cmd
}

func (a *app) transcriptsClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every recorded conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return usagef("clear removes every transcript; rerun with --yes")
			}
			store, err := a.transcripts()
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return newCommandError("transcripts", "clear", err)
			}
			fmt.Fprintln(a.out, okStyle.Render("Cleared all transcripts"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func (a *app) loadTranscript(cmd *cobra.Command, roomID string) (*storage.StoredConversation, error) {
	store, err := a.transcripts()
	if err != nil {
		return nil, err
	}
	conv, err := store.Load(cmd.Context(), roomID)
	if err != nil {
		return nil, newCommandError("transcripts", "load", err)
	}
	return conv, nil
}
