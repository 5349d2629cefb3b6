// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/model"
	"github.com/jeranaias/chatgate/internal/util"
)

func (a *app) roomsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage chat rooms",
	}
	cmd.AddCommand(
		a.roomsListCommand(),
		a.roomsShowCommand(),
		a.roomsCreateCommand(),
		a.roomsDeleteCommand(),
	)
	return cmd
}

func (a *app) roomsListCommand() *cobra.Command {
	var (
		page   int
		size   int
		sortBy string
		asc    bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rooms, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			p := gateway.PageParams{Page: page, Size: size}
			if sortBy != "" {
				p.Sort = gateway.SortParam(sortBy, !asc)
			}
			rooms, err := client.ListRooms(cmd.Context(), p)
			if err != nil {
				return newCommandError("rooms", "list", err)
			}
			return a.emit(cmd, rooms, func(w io.Writer) { printRooms(w, rooms) })
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number, from 0")
	cmd.Flags().IntVar(&size, "size", 0, fmt.Sprintf("page size, at most %d", gateway.MaxRoomPageSize))
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort field: createdAt, lastMessageAt or title")
	cmd.Flags().BoolVar(&asc, "asc", false, "sort ascending")
	return cmd
}

func printRooms(w io.Writer, rooms gateway.Page[gateway.Room]) {
	if len(rooms.Content) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No rooms."))
		return
	}
	t := newTable("ROOM", "TITLE", "COINS", "LAST MESSAGE")
	for _, r := range rooms.Content {
		t.add(r.RoomID, util.TruncateWidth(r.Title, 30), r.CoinUsage.StringFixed(2), formatTime(r.LastMessageAt))
	}
	t.render(w)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("page %d of %d, %d rooms", rooms.Number+1, max(rooms.TotalPages, 1), rooms.TotalElements)))
}

func (a *app) roomsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <roomId>",
		Short: "Show one room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			room, err := client.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return newCommandError("rooms", "show", err)
			}
			return a.emit(cmd, room, func(w io.Writer) { printRoom(w, room) })
		},
	}
}

func printRoom(w io.Writer, room gateway.RoomDetail) {
	fmt.Fprintln(w, headingStyle.Render(room.Title))
	field(w, "Room", room.RoomID)
	field(w, "Coins used", room.CoinUsage.StringFixed(2))
	field(w, "Created", formatTime(&room.CreatedAt))
	field(w, "Updated", formatTime(&room.UpdatedAt))
}

func (a *app) roomsCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create a room bound to the selected model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.resolveModel(cmd.Context())
			if err != nil {
				return newCommandError("rooms", "create", err)
			}
			room, err := a.client.CreateRoom(cmd.Context(), gateway.CreateRoomRequest{
				Title:   strings.Join(args, " "),
				ModelID: m.ModelID,
			})
			if err != nil {
				return newCommandError("rooms", "create", err)
			}
			return a.emit(cmd, room, func(w io.Writer) { printRoom(w, room) })
		},
	}
}

func (a *app) roomsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <roomId>",
		Aliases: []string{"rm"},
		Short:   "Delete a room and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			if err := client.DeleteRoom(cmd.Context(), args[0]); err != nil {
				return newCommandError("rooms", "delete", err)
			}
			return a.emit(cmd, map[string]string{"roomId": args[0]}, func(w io.Writer) {
				fmt.Fprintln(w, okStyle.Render("Deleted room "+args[0]))
			})
		},
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

func (a *app) historyCommand() *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "history [roomId]",
		Short: "Print the stored messages of a room, oldest first",
		Long: `Print the stored messages of a room, oldest first. The room defaults
to --room or chat.room_id from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			roomID := a.cfg.Chat.RoomID
			if len(args) == 1 {
				roomID = args[0]
			}
			if roomID == "" {
				return usagef("history needs a room id")
			}
			msgs, err := client.AllMessages(cmd.Context(), roomID)
			if err != nil {
				return newCommandError("history", "", err)
			}
			render := markdown && isTerminal(a.out)
			return a.emit(cmd, msgs, func(w io.Writer) { a.printHistory(w, msgs, render) })
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render assistant messages as markdown on a terminal")
	return cmd
}

func (a *app) printHistory(w io.Writer, msgs []gateway.APIMessage, render bool) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No messages."))
		return
	}
	width := terminalWidth(w)
	for i, msg := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		role, _ := model.ParseRole(msg.Role)
		label := promptStyle.Render(role.DisplayName())
		if role == model.RoleAssistant {
			label = headingStyle.Render(role.DisplayName())
		}
		fmt.Fprintf(w, "%s %s\n", label, mutedStyle.Render(formatTime(&msg.CreatedAt)))
		if render && role == model.RoleAssistant {
			fmt.Fprint(w, renderMarkdown(msg.Content, width))
			continue
		}
		fmt.Fprintln(w, msg.Content)
	}
}

func (a *app) messageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "message <messageId>",
		Short: "Show one stored message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			msg, err := client.GetMessage(cmd.Context(), args[0])
			if err != nil {
				return newCommandError("message", "get", err)
			}
			return a.emit(cmd, msg, func(w io.Writer) {
				field(w, "Message", msg.MessageID)
				field(w, "Room", msg.RoomID)
				field(w, "Role", msg.Role)
				field(w, "Model", strconv.FormatInt(msg.ModelID, 10))
				field(w, "Tokens", strconv.Itoa(msg.TokenCount))
				field(w, "Coins", msg.CoinCount.String())
				if msg.FileURL != nil {
					field(w, "Attachment", *msg.FileURL)
				}
				field(w, "Created", formatTime(&msg.CreatedAt))
				fmt.Fprintln(w)
				fmt.Fprintln(w, msg.Content)
			})
		},
	}
}
