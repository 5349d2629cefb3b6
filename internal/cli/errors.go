// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/config"
	"github.com/jeranaias/chatgate/internal/gateway"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError covers bad flags, arguments and rejected input.
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	// ExitBalanceError means the wallet cannot pay for a send.
	ExitBalanceError  = 6
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError ties a failure to the command that produced it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func newCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// usageError marks a failure caused by how the command was invoked.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// configError marks a failure to load or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string {
	return "config: " + e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *usageError
	var validation *gateway.ValidationError
	var cfgErr *configError
	var cfgInvalid config.ValidateErrors
	var transport *gateway.TransportError

	switch {
	case errors.As(err, &usage),
		errors.As(err, &validation),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, gateway.ErrModelNotActive):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &cfgInvalid):
		return ExitConfigError
	case errors.Is(err, gateway.ErrUnauthenticated),
		errors.Is(err, gateway.ErrForbidden):
		return ExitAuthError
	case errors.Is(err, gateway.ErrInsufficientBalance),
		errors.Is(err, chat.ErrNegativeBalance):
		return ExitBalanceError
	case errors.Is(err, gateway.ErrNotFound),
		errors.Is(err, gateway.ErrModelNotFound),
		errors.Is(err, gateway.ErrRoomNotFound):
		return ExitNotFoundError
	case errors.Is(err, gateway.ErrIdleTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &transport):
		return ExitNetworkError
	}
	return ExitGeneralError
}
