// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// =============================================================================
// SANDBOX
// =============================================================================

// Sandbox executes untrusted candidate code in a scoped, disposable
// working area with enforced resource bounds.
//
// Guarantees:
//   - The filesystem footprint is confined to a per-execution temp
//     directory removed after the run.
//   - Wall-clock timeout kills the whole process group.
//   - CPU and address-space limits are applied via ulimit on the child.
//   - Output is fully captured, truncated at the configured size.
//
// A timeout or resource exhaustion yields a failed Result, never an
// error: only setup problems (workspace, unknown language) are errors.
//
// Thread Safety: safe for concurrent use. Each execution creates its
// own workspace and process.
type Sandbox struct {
	baseDir   string
	languages *LanguageConfigRegistry
	logger    *slog.Logger
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithBaseDir sets the parent directory for execution workspaces.
// Default: the system temp directory.
func WithBaseDir(dir string) SandboxOption {
	return func(s *Sandbox) { s.baseDir = dir }
}

// WithLanguages sets the language registry. Default: DefaultLanguageConfigs.
func WithLanguages(r *LanguageConfigRegistry) SandboxOption {
	return func(s *Sandbox) { s.languages = r }
}

// NewSandbox creates a sandbox.
//
// Inputs:
//
//	logger - Logger for structured logging (nil uses slog.Default)
//	opts - Optional configuration
//
// Outputs:
//
//	*Sandbox - Ready-to-use sandbox
func NewSandbox(logger *slog.Logger, opts ...SandboxOption) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sandbox{
		languages: DefaultLanguageConfigs,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs candidate code under the configured bounds.
//
// Description:
//
//	Writes the code into a fresh workspace, runs the language's command
//	with stdin connected to input, and captures output. The workspace
//	is removed before Execute returns regardless of outcome.
//
// Inputs:
//
//	ctx - Context for cancellation; external cancellation kills the
//	      process group and returns the partial result with ctx.Err()
//	code - Candidate source code
//	input - Data fed to the child's stdin
//	cfg - Execution bounds
//
// Outputs:
//
//	*Result - Execution outcome; non-nil even on cancellation
//	error - Non-nil only for setup failures or external cancellation
//
// Thread Safety: safe for concurrent use.
func (s *Sandbox) Execute(ctx context.Context, code, input string, cfg Config) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	langCfg, ok := s.languages.Get(cfg.Language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, cfg.Language)
	}

	workDir, err := os.MkdirTemp(s.baseDir, "evolve-sbx-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	defer os.RemoveAll(workDir)

	codePath := filepath.Join(workDir, langCfg.FileName)
	if err := os.WriteFile(codePath, []byte(code), 0600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, cfg.WallClockTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", buildScript(langCfg, codePath, cfg))
	cmd.Dir = workDir
	cmd.Env = childEnv(workDir, langCfg, cfg)
	cmd.Stdin = strings.NewReader(input)

	// Run the child in its own process group so a kill reaches any
	// grandchildren the candidate spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: cfg.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderr, limit: cfg.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	s.logger.Debug("Executing candidate",
		slog.String("language", cfg.Language),
		slog.Duration("timeout", cfg.WallClockTimeout),
		slog.Int("code_bytes", len(code)),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Output:    stdout.String() + stderr.String(),
		Duration:  duration,
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}
	fillUsage(cmd, result)

	// Wall-clock timeout: a normal failed result, not an error.
	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		s.logger.Warn("Candidate execution timed out",
			slog.Duration("timeout", cfg.WallClockTimeout),
		)
		recordExecution(ctx, cfg.Language, duration, false, true)
		return result, nil
	}

	// External cancellation: caller decides how to score the candidate.
	if ctx.Err() != nil {
		result.ExitCode = -1
		result.Diagnostic = "execution canceled"
		recordExecution(ctx, cfg.Language, duration, false, false)
		return result, ctx.Err()
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Diagnostic = classifyFailure(exitErr, result.Output)
		} else {
			result.ExitCode = -1
			result.Diagnostic = fmt.Sprintf("execution failed: %v", runErr)
		}
	} else {
		result.ExitCode = 0
		result.Success = true
	}

	s.logger.Debug("Candidate execution finished",
		slog.Bool("success", result.Success),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
		slog.Int("output_bytes", len(result.Output)),
	)
	recordExecution(ctx, cfg.Language, duration, result.Success, false)

	return result, nil
}

// buildScript assembles the shell line that applies rlimits and execs
// the language command.
func buildScript(langCfg LanguageConfig, codePath string, cfg Config) string {
	var sb strings.Builder
	if cfg.CPUTimeLimit > 0 {
		secs := int(cfg.CPUTimeLimit / time.Second)
		if secs < 1 {
			secs = 1
		}
		fmt.Fprintf(&sb, "ulimit -t %d; ", secs)
	}
	if cfg.MemoryLimitBytes > 0 {
		fmt.Fprintf(&sb, "ulimit -v %d; ", cfg.MemoryLimitBytes/1024)
	}
	sb.WriteString("exec")
	for _, arg := range langCfg.RunCommand {
		arg = strings.ReplaceAll(arg, "{file}", codePath)
		sb.WriteString(" ")
		sb.WriteString(shellQuote(arg))
	}
	return sb.String()
}

// childEnv builds a scrubbed environment for the candidate process.
func childEnv(workDir string, langCfg LanguageConfig, cfg Config) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"GOCACHE=" + filepath.Join(workDir, ".gocache"),
	}
	if cfg.AllowNetwork {
		for _, key := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY"} {
			if v := os.Getenv(key); v != "" {
				env = append(env, key+"="+v)
			}
		}
	}
	env = append(env, langCfg.Env...)
	return env
}

// classifyFailure produces a diagnostic for resource-exhaustion kills.
func classifyFailure(exitErr *exec.ExitError, output string) string {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		switch status.Signal() {
		case unix.SIGXCPU:
			return "cpu time limit exceeded"
		case unix.SIGKILL:
			return "killed (resource limit)"
		}
	}
	lower := strings.ToLower(output)
	if strings.Contains(lower, "out of memory") || strings.Contains(lower, "cannot allocate memory") ||
		strings.Contains(lower, "memoryerror") {
		return "memory limit exceeded"
	}
	return ""
}

// fillUsage copies rusage into the result, best effort.
func fillUsage(cmd *exec.Cmd, result *Result) {
	if cmd.ProcessState == nil {
		return
	}
	if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && ru != nil {
		user := time.Duration(ru.Utime.Sec)*time.Second + time.Duration(ru.Utime.Usec)*time.Microsecond
		sys := time.Duration(ru.Stime.Sec)*time.Second + time.Duration(ru.Stime.Usec)*time.Microsecond
		result.Usage = ResourceUsage{
			CPUTime:     user + sys,
			MaxRSSBytes: ru.Maxrss * 1024, // Maxrss is KB on Linux
		}
	}
}

// shellQuote single-quotes an argument for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// =============================================================================
// LIMITED WRITER
// =============================================================================

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil // Silently discard
	}

	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return len(p), err // Return original length to avoid breaking callers
}
