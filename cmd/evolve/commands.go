// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianEvolve/pkg/logging"
)

// =============================================================================
// GLOBAL FLAGS & ROOT COMMAND
// =============================================================================

var (
	dataDir string // Badger store location; empty disables persistence
	logDir  string // JSON log file directory; empty logs to stderr only
	verbose bool   // Debug-level logging

	rootCmd = &cobra.Command{
		Use:   "evolve",
		Short: "Evolve source files through sandboxed, validated mutations",
		Long: `Evolve proposes mutations to a source file, executes every
candidate in a resource-limited sandbox, validates the survivors, and
commits the best candidate to an append-only snapshot chain when it
clears the acceptance threshold. Rejected and flaky candidates never
touch your code.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the persistent run/snapshot store (empty: in-memory only)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (empty: stderr only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

// newLogger builds the process logger from the global flags.
func newLogger(service string) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: service,
	})
}
