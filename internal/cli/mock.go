// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/server"
)

func (a *app) mockServerCommand() *cobra.Command {
	var (
		addr      string
		delay     time.Duration
		balance   string
		session   string
		rateLimit float64
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local gateway that streams canned replies",
		Long: `Run a local gateway with in-memory rooms, models and a wallet.
Replies are canned and streamed one character at a time, which is enough
to exercise every chatgate command without a real backend.

Defaults come from the [mock] section of the config.`,
		Example: `  chatgate mock-server --addr 127.0.0.1:9090 --delay 50ms
  chatgate mock-server --session SESSION=dev-token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := server.Options{
				Addr:       a.cfg.Mock.Addr,
				DeltaDelay: a.cfg.Mock.DeltaDelay(),
				RateLimit:  rateLimit,
				Logger:     logging.Named("mock"),
			}
			if cmd.Flags().Changed("addr") {
				opts.Addr = addr
			}
			if cmd.Flags().Changed("delay") {
				opts.DeltaDelay = delay
			}
			if !cmd.Flags().Changed("balance") {
				balance = a.cfg.Mock.Balance
			}
			bal, err := decimal.NewFromString(balance)
			if err != nil {
				return usagef("balance must be a decimal number: %q", balance)
			}
			opts.Balance = bal
			if session != "" {
				name, value, ok := strings.Cut(session, "=")
				if !ok || name == "" || value == "" {
					return usagef("session must look like NAME=VALUE")
				}
				opts.SessionCookie, opts.SessionValue = name, value
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(opts)
			fmt.Fprintf(a.errOut, "%s http://%s (balance %s)\n", okStyle.Render("mock gateway on"), opts.Addr, bal.StringFixed(2))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between streamed characters")
	cmd.Flags().StringVar(&balance, "balance", "", "starting wallet balance")
	cmd.Flags().StringVar(&session, "session", "", "require this NAME=VALUE session cookie")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "per-client requests per second, 0 disables")
	return cmd
}
