// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/util"
)

// =============================================================================
// PAYMENTS
// =============================================================================

func (a *app) paymentsCommand() *cobra.Command {
	var (
		page, size int
		status     string
	)
	cmd := &cobra.Command{
		Use:   "payments [id]",
		Short: "List coin purchases, or show one payment",
		Example: `  chatgate payments --status completed
  chatgate payments 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return usagef("payment id must be a number: %q", args[0])
				}
				p, err := client.GetPayment(ctx, id)
				if err != nil {
					return newCommandError("payments", "get", err)
				}
				return a.emit(cmd, p, func(w io.Writer) { printPayment(w, p) })
			}

			res, err := client.ListPayments(ctx, gateway.PaymentListParams{
				Page:   page,
				Size:   size,
				Status: gateway.PaymentStatus(status),
			})
			if err != nil {
				return newCommandError("payments", "list", err)
			}
			return a.emit(cmd, res, func(w io.Writer) { printPayments(w, res) })
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page")
	cmd.Flags().IntVar(&size, "size", 20, "page size, at most 100")
	cmd.Flags().StringVar(&status, "status", "", "pending, completed, failed or cancelled")
	return cmd
}

func paymentStatus(s gateway.PaymentStatus) string {
	switch s {
	case gateway.PaymentCompleted:
		return okStyle.Render(string(s))
	case gateway.PaymentFailed:
		return errorStyle.Render(string(s))
	case gateway.PaymentPending:
		return warnStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

func printPayments(w io.Writer, res gateway.Page[gateway.Payment]) {
	if len(res.Content) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No payments."))
		return
	}
	t := newTable("ID", "KRW", "COINS", "METHOD", "STATUS", "CREATED")
	for _, p := range res.Content {
		t.add(
			strconv.FormatInt(p.PaymentID, 10),
			humanize.Comma(p.AmountKRW.IntPart()),
			p.TotalCoins().StringFixed(2),
			p.PaymentMethod,
			paymentStatus(p.Status),
			formatTime(&p.CreatedAt),
		)
	}
	t.render(w)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("page %d of %d, %d payments", res.Number+1, max(res.TotalPages, 1), res.TotalElements)))
}

func printPayment(w io.Writer, p gateway.PaymentDetail) {
	field(w, "Payment", strconv.FormatInt(p.PaymentID, 10))
	field(w, "Status", paymentStatus(p.Status))
	field(w, "Transaction", p.TransactionID)
	field(w, "Method", p.PaymentMethod)
	if p.PaymentGateway != "" {
		field(w, "Gateway", p.PaymentGateway)
	}
	field(w, "Amount", humanize.Comma(p.AmountKRW.IntPart())+" KRW ($"+p.AmountUSD.StringFixed(2)+")")
	field(w, "Coins", p.CoinAmount.StringFixed(2))
	if !p.BonusCoin.IsZero() {
		field(w, "Bonus", p.BonusCoin.StringFixed(2))
	}
	field(w, "Created", formatTime(&p.CreatedAt))
	field(w, "Completed", formatTime(p.CompletedAt))
}

// =============================================================================
// ACCOUNT AND DASHBOARD
// =============================================================================

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			u, err := client.GetCurrentUser(cmd.Context())
			if err != nil {
				return newCommandError("whoami", "", err)
			}
			return a.emit(cmd, u, func(w io.Writer) {
				fmt.Fprintln(w, headingStyle.Render(u.Username))
				field(w, "ID", strconv.FormatInt(u.UserID, 10))
				field(w, "Email", u.Email)
				field(w, "Activated", strconv.FormatBool(u.IsActivated))
				field(w, "Member since", formatTime(&u.CreatedAt))
			})
		},
	}
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize spending and activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			st, err := client.GetDashboardStats(cmd.Context())
			if err != nil {
				return newCommandError("stats", "", err)
			}
			return a.emit(cmd, st, func(w io.Writer) {
				field(w, "Balance", st.CurrentBalance.StringFixed(2))
				field(w, "Purchased", st.TotalCoinPurchased.StringFixed(2))
				field(w, "Used", st.TotalCoinUsed.StringFixed(2))
				field(w, "Last 30 days", st.Last30DaysUsage.StringFixed(2))
				field(w, "Rooms", humanize.Comma(st.TotalChatRooms))
				field(w, "Messages", humanize.Comma(st.TotalMessages))
				if m := st.MostUsedModel; m != nil {
					field(w, "Top model", fmt.Sprintf("%s (%s%%)", m.DisplayName, m.UsagePercentage.StringFixed(1)))
				}
				field(w, "Member since", formatTime(&st.MemberSince))
			})
		},
	}
}

func (a *app) usageCommand() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Break a month's spending down by model and day",
		Example: `  chatgate usage
  chatgate usage --year 2025 --month 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			u, err := client.GetMonthlyUsage(cmd.Context(), gateway.UsageMonth{Year: year, Month: month})
			if err != nil {
				return newCommandError("usage", "", err)
			}
			return a.emit(cmd, u, func(w io.Writer) { printUsage(w, u) })
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year, default current")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12, default current")
	return cmd
}

func printUsage(w io.Writer, u gateway.MonthlyUsage) {
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%04d-%02d  %s coins", u.Year, u.Month, u.TotalCoinUsed.StringFixed(4))))
	if len(u.ModelUsage) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No usage this month."))
		return
	}
	t := newTable("MODEL", "COINS", "SHARE", "MESSAGES", "TOKENS")
	for _, m := range u.ModelUsage {
		t.add(
			util.TruncateWidth(m.DisplayName, 32),
			m.CoinUsed.StringFixed(4),
			m.Percentage.StringFixed(1)+"%",
			humanize.Comma(m.MessageCount),
			humanize.Comma(m.TokenCount),
		)
	}
	t.render(w)

	fmt.Fprintln(w)
	days := newTable("DATE", "COINS", "MESSAGES")
	for _, d := range u.DailyUsage {
		days.add(d.Date, d.CoinUsed.StringFixed(4), humanize.Comma(d.MessageCount))
	}
	days.render(w)
}

func (a *app) pricingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pricing",
		Short: "Show the public model price sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.gatewayClient()
			if err != nil {
				return err
			}
			prices, err := client.GetModelsPricing(cmd.Context())
			if err != nil {
				return newCommandError("pricing", "", err)
			}
			return a.emit(cmd, prices, func(w io.Writer) {
				t := newTable("ID", "MODEL", "INPUT/1K", "OUTPUT/1K", "AVG/1K", "STATUS")
				for _, p := range prices {
					status := okStyle.Render("active")
					if !p.IsActive {
						status = mutedStyle.Render("inactive")
					}
					t.add(
						strconv.FormatInt(p.ModelID, 10),
						p.ModelName,
						p.InputPricePer1k.String(),
						p.OutputPricePer1k.String(),
						p.AveragePricePer1k.String(),
						status,
					)
				}
				t.render(w)
			})
		},
	}
}
