// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Command zsyncgo fetches only the bytes a local file is missing
// relative to a remote target, guided by a zsync-style control document.
package main

import (
	"errors"
	"os"

	"github.com/zsyncgo/zsyncgo/internal/cli"
	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		var de *zsync.DriverError
		if errors.As(err, &de) {
			os.Exit(de.Outcome.ExitCode())
		}
		os.Exit(1)
	}
}
