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
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	historySubject string // Filter runs by subject
	historyJSON    bool   // Output as JSON
	historyLimit   int    // Maximum runs to print
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// historyCmd lists persisted evolution runs, newest first.
//
// # Examples
//
//	evolve history --data-dir ~/.aleutian/evolve
//	evolve history --data-dir ~/.aleutian/evolve --subject broken.py --json
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted evolution runs",
	Run:   runHistory, // Defined below
}

func init() {
	historyCmd.Flags().StringVar(&historySubject, "subject", "", "Only show runs for this subject")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
}

// =============================================================================
// EXECUTION
// =============================================================================

func runHistory(cmd *cobra.Command, args []string) {
	if dataDir == "" {
		log.Fatal("history requires --data-dir: without a store, runs are not persisted")
	}

	logger := newLogger("evolve")
	defer logger.Close()

	st, err := openStore(logger.Slog())
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	defer st.Close()

	records, err := st.Runs().ListRuns(context.Background(), historySubject)
	if err != nil {
		log.Fatalf("Error listing runs: %v", err)
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			log.Fatalf("Error encoding runs: %v", err)
		}
		return
	}

	if len(records) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %-11s  %-12s  score %.3f  attempts %d  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Status,
			rec.Strategy,
			rec.FinalScore,
			len(rec.Attempts),
			rec.Subject,
		)
		for _, attempt := range rec.Attempts {
			outcome := attempt.FailureReason
			if attempt.Accepted {
				outcome = "accepted (snapshot " + attempt.SnapshotID + ")"
			}
			fmt.Printf("    attempt %d [%s]: %s\n", attempt.Number, attempt.StrategyName, outcome)
		}
	}
}
