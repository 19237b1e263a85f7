// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command evolve runs the AleutianEvolve code evolution engine.
//
// Evolve takes a source file, asks a strategy for candidate mutations,
// executes every candidate in a resource-limited sandbox, validates
// the survivors, and commits the best candidate to an append-only
// snapshot chain when it clears the acceptance threshold.
//
// Usage:
//
//	evolve run broken.py --goal "make the tests print PASS"
//	evolve run main.go --strategy evolutionary --target-output "42"
//	evolve history --subject broken.py
//
// LLM-backed strategies (llm_guided, error_fix) need OPENAI_API_KEY
// in the environment or mounted at /run/secrets/openai_api_key.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
