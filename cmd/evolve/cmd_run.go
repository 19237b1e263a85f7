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
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/engine"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/llm"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/store"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runConfigPath   string // Optional YAML config layered over defaults
	runStrategy     string // Strategy registry name
	runLanguage     string // Candidate language (go, python)
	runSubject      string // Subject identifier; defaults to the file path
	runGoal         string // Natural-language goal for LLM strategies
	runInput        string // Candidate stdin
	runTargetOutput string // Expected output; blends similarity into fitness
	runMaxAttempts  int
	runThreshold    float64
	runWriteBack    bool // Write the accepted candidate over the input file
	runShowDiff     bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// runCmd evolves one source file.
//
// # Examples
//
//	evolve run broken.py --goal "fix the off-by-one in sum_range"
//	evolve run main.go --strategy evolutionary --target-output "42"
//	evolve run fib.py --strategy random --max-attempts 20 --write
var runCmd = &cobra.Command{
	Use:   "run [source file]",
	Short: "Evolve a source file toward its goal",
	Args:  cobra.ExactArgs(1),
	Run:   runEvolve, // Defined below
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "YAML config file layered over defaults")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Strategy: random, llm_guided, error_fix, evolutionary")
	runCmd.Flags().StringVar(&runLanguage, "language", "", "Candidate language (default: inferred from file extension)")
	runCmd.Flags().StringVar(&runSubject, "subject", "", "Subject identifier (default: the file path)")
	runCmd.Flags().StringVar(&runGoal, "goal", "", "Goal description passed to LLM strategies")
	runCmd.Flags().StringVar(&runInput, "input", "", "Data fed to each candidate's stdin")
	runCmd.Flags().StringVar(&runTargetOutput, "target-output", "", "Expected output; similarity is blended into fitness")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Override propose-evaluate rounds per run")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", -1, "Override the acceptance score threshold")
	runCmd.Flags().BoolVar(&runWriteBack, "write", false, "Write the accepted candidate back to the source file")
	runCmd.Flags().BoolVar(&runShowDiff, "diff", true, "Print the accepted candidate's diff")
}

// =============================================================================
// EXECUTION
// =============================================================================

func runEvolve(cmd *cobra.Command, args []string) {
	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading source file: %v", err)
	}

	cfg, err := buildRunConfig(path)
	if err != nil {
		log.Fatalf("Error building config: %v", err)
	}

	logger := newLogger("evolve")
	defer logger.Close()
	slogger := logger.Slog()

	st, err := openStore(slogger)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	if st != nil {
		defer st.Close()
	}

	sb := sandbox.NewSandbox(slogger)
	pool := sandbox.NewPool(sb, sandbox.DefaultPoolConfig(), slogger)
	pool.Start()
	defer pool.Close()
	sandboxMgr := sandbox.NewManager(pool, sandbox.DefaultManagerConfig(), slogger)

	registry, err := buildRegistry(sandboxMgr, cfg, slogger)
	if err != nil {
		log.Fatalf("Error building strategies: %v", err)
	}

	eng, err := engine.New(registry, sandboxMgr, st, slogger)
	if err != nil {
		log.Fatalf("Error creating engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subject := runSubject
	if subject == "" {
		subject = path
	}
	run, err := eng.EvolveCode(ctx, subject, string(source), cfg)
	if err != nil {
		log.Fatalf("Evolution run failed: %v", err)
	}

	printRun(run)
	if run.Status == engine.StatusSucceeded && runWriteBack {
		if err := os.WriteFile(path, []byte(run.FinalCode), 0644); err != nil {
			log.Fatalf("Error writing accepted candidate: %v", err)
		}
		fmt.Printf("Wrote accepted candidate to %s\n", path)
	}
	if run.Status != engine.StatusSucceeded {
		os.Exit(1)
	}
}

// buildRunConfig layers the config file and flags over defaults.
func buildRunConfig(sourcePath string) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if runConfigPath != "" {
		var err error
		cfg, err = engine.LoadConfig(runConfigPath)
		if err != nil {
			return cfg, err
		}
	}

	if runStrategy != "" {
		cfg.Strategy = runStrategy
	}
	if runLanguage != "" {
		cfg.Sandbox.Language = runLanguage
	} else if runConfigPath == "" {
		cfg.Sandbox.Language = languageForFile(sourcePath)
	}
	if runGoal != "" {
		cfg.Goal = runGoal
	}
	if runInput != "" {
		cfg.Input = runInput
	}
	if runTargetOutput != "" {
		cfg.TargetOutput = runTargetOutput
	}
	if runMaxAttempts > 0 {
		cfg.MaxAttempts = runMaxAttempts
	}
	if runThreshold >= 0 {
		cfg.AcceptThreshold = runThreshold
	}
	// Whole-program replacements are always classified high risk;
	// filtering them out would make the strategy a no-op.
	if cfg.Strategy == "evolutionary" && cfg.MaxRisk != strategy.RiskHigh {
		cfg.MaxRisk = strategy.RiskHigh
	}
	return cfg, cfg.Validate()
}

// openStore opens the persistent store when --data-dir is set.
func openStore(logger *slog.Logger) (*store.Store, error) {
	if dataDir == "" {
		return nil, nil
	}
	cfg := store.DefaultConfig(dataDir)
	cfg.Logger = logger
	return store.Open(cfg)
}

// languageForFile maps a source extension to a sandbox language.
func languageForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	default:
		return "go"
	}
}

// buildRegistry registers every strategy the environment can support.
// LLM-backed strategies are skipped, not fatal, when no API key is
// configured.
func buildRegistry(sandboxMgr *sandbox.Manager, cfg engine.Config, logger *slog.Logger) (*strategy.Registry, error) {
	mutator, err := mutation.NewMutator(cfg.Sandbox.Language)
	if err != nil {
		return nil, err
	}

	registry := strategy.NewRegistry()

	random, err := strategy.NewRandomStrategy(mutator, strategy.DefaultRandomConfig())
	if err != nil {
		return nil, err
	}
	if err := registry.Register(random); err != nil {
		return nil, err
	}

	evaluator, err := engine.NewEvaluator(sandboxMgr, cfg.Sandbox.Language, cfg.Input, cfg.Sandbox)
	if err != nil {
		return nil, err
	}
	evoCfg := strategy.DefaultEvolutionaryConfig()
	evoCfg.TargetOutput = cfg.TargetOutput
	evolutionary, err := strategy.NewEvolutionaryStrategy(mutator, evaluator, evoCfg, logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(evolutionary); err != nil {
		return nil, err
	}

	client, err := llm.NewOpenAIClient()
	if err != nil {
		logger.Warn("LLM strategies unavailable", slog.String("reason", err.Error()))
		return registry, nil
	}
	guided, err := strategy.NewLLMGuidedStrategy(client, mutator, strategy.DefaultLLMGuidedConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(guided); err != nil {
		return nil, err
	}
	errorFix, err := strategy.NewErrorFixStrategy(client, mutator, strategy.DefaultErrorFixConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(errorFix); err != nil {
		return nil, err
	}
	return registry, nil
}

// printRun summarizes the finished run for the terminal.
func printRun(run *engine.Run) {
	fmt.Printf("Run %s: %s after %d attempt(s)\n", run.ID, run.Status, len(run.Attempts))
	for _, attempt := range run.Attempts {
		if attempt.Accepted {
			fmt.Printf("  attempt %d [%s]: accepted, score %.3f\n",
				attempt.Number, attempt.StrategyName, bestScoreOf(attempt))
			continue
		}
		fmt.Printf("  attempt %d [%s]: %s\n", attempt.Number, attempt.StrategyName, attempt.FailureReason)
	}
	if run.Status == engine.StatusSucceeded {
		fmt.Printf("Final score %.3f, snapshot %s\n", run.FinalScore, run.SnapshotID)
		if runShowDiff {
			if best := lastBest(run); best != nil && best.Diff != "" {
				fmt.Println(best.Diff)
			}
		}
	}
}

func bestScoreOf(attempt *engine.Attempt) float64 {
	if best := attempt.BestCandidate(); best != nil {
		return best.Score
	}
	return 0
}

func lastBest(run *engine.Run) *engine.Candidate {
	for i := len(run.Attempts) - 1; i >= 0; i-- {
		if best := run.Attempts[i].BestCandidate(); best != nil {
			return best
		}
	}
	return nil
}
