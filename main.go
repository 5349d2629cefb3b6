// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chatgate is a terminal client for a streaming chat gateway.
//
// Build with version information:
//
//	go build -ldflags "-X github.com/jeranaias/chatgate/internal/cli.Version=1.0.0 \
//	  -X github.com/jeranaias/chatgate/internal/cli.GitCommit=$(git rev-parse --short HEAD)"
package main

import (
	"os"

	"github.com/jeranaias/chatgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
