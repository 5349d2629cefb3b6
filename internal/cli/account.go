// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/util"
)

func (a *app) modelsCommand() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "models [id]",
		Short: "List models and their prices, or show one model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return usagef("model id must be a number: %q", args[0])
				}
				m, err := client.GetModel(ctx, id)
				if err != nil {
					return newCommandError("models", "get", err)
				}
				return a.emit(cmd, m, func(w io.Writer) { printModel(w, m) })
			}

			var models []gateway.AIModel
			if activeOnly {
				models, err = a.models.Active(ctx)
			} else {
				models, err = a.models.Models(ctx)
			}
			if err != nil {
				return newCommandError("models", "list", err)
			}
			return a.emit(cmd, models, func(w io.Writer) { printModels(w, models) })
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only models accepting requests")
	return cmd
}

func printModels(w io.Writer, models []gateway.AIModel) {
	if len(models) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No models."))
		return
	}
	t := newTable("ID", "NAME", "MODEL", "INPUT/1K", "OUTPUT/1K", "STATUS")
	for _, m := range models {
		status := okStyle.Render("active")
		if !m.IsActive {
			status = mutedStyle.Render("inactive")
		}
		t.add(
			strconv.FormatInt(m.ModelID, 10),
			util.TruncateWidth(m.DisplayName, 32),
			m.ModelName,
			m.InputPricePer1k.String(),
			m.OutputPricePer1k.String(),
			status,
		)
	}
	t.render(w)
}

func printModel(w io.Writer, m gateway.AIModel) {
	fmt.Fprintln(w, headingStyle.Render(m.DisplayName))
	field(w, "ID", strconv.FormatInt(m.ModelID, 10))
	field(w, "Name", m.ModelName)
	if m.DisplayExplain != "" {
		field(w, "About", m.DisplayExplain)
	}
	field(w, "Input / 1k", m.InputPricePer1k.String())
	field(w, "Output / 1k", m.OutputPricePer1k.String())
	field(w, "Average / 1k", m.AveragePricePer1k.String())
	field(w, "Active", strconv.FormatBool(m.IsActive))
}

func (a *app) balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			bal, err := client.GetBalance(cmd.Context())
			if err != nil {
				return newCommandError("balance", "", err)
			}
			return a.emit(cmd, bal, func(w io.Writer) {
				style := okStyle
				if bal.Negative() {
					style = errorStyle
				}
				fmt.Fprintln(w, style.Render(bal.Balance.StringFixed(2)+" coins"))
			})
		},
	}
}

func (a *app) walletCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the wallet summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			wallet, err := client.GetWallet(cmd.Context())
			if err != nil {
				return newCommandError("wallet", "", err)
			}
			return a.emit(cmd, wallet, func(w io.Writer) {
				field(w, "Wallet", strconv.FormatInt(wallet.WalletID, 10))
				field(w, "Balance", wallet.Balance.StringFixed(2))
				field(w, "Purchased", wallet.TotalPurchased.StringFixed(2))
				field(w, "Used", wallet.TotalUsed.StringFixed(2))
				field(w, "Last transaction", formatTime(wallet.LastTransactionAt))
			})
		},
	}
}

func (a *app) transactionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transaction <id>",
		Short: "Show one wallet ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			tx, err := client.GetTransaction(cmd.Context(), args[0])
			if err != nil {
				return newCommandError("transaction", "get", err)
			}
			return a.emit(cmd, tx, func(w io.Writer) {
				field(w, "Transaction", strconv.FormatInt(tx.TransactionID, 10))
				field(w, "Type", string(tx.Type))
				field(w, "Amount", tx.Amount.StringFixed(2))
				field(w, "Balance after", tx.BalanceAfter.StringFixed(2))
				if tx.Description != "" {
					field(w, "Description", tx.Description)
				}
				if tx.RoomID != nil {
					field(w, "Room", *tx.RoomID)
				}
				if tx.ModelID != nil {
					field(w, "Model", strconv.FormatInt(*tx.ModelID, 10))
				}
				field(w, "Created", formatTime(&tx.CreatedAt))
			})
		},
	}
}
