package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"astro_insight/internal/core"
	"astro_insight/src/logger"
	"astro_insight/src/model"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxOutputBytes = 1 << 20
	defaultMaxConcurrent  = 4
	waitDelay             = 2 * time.Second
)

// Config controls script execution
type Config struct {
	Interpreter    string
	Args           []string
	ScriptName     string
	OutputRoot     string
	Timeout        time.Duration
	MaxOutputBytes int
	MaxConcurrent  int64
	Env            []string
}

// ConfigFromModel maps environment configuration onto Config
func ConfigFromModel(c model.ExecutorConfig) Config {
	return Config{
		Interpreter:    c.Interpreter,
		ScriptName:     c.ScriptName,
		OutputRoot:     c.OutputRoot,
		Timeout:        c.Timeout,
		MaxOutputBytes: c.MaxOutputBytes,
		MaxConcurrent:  c.MaxConcurrent,
	}
}

// Request is one script to run
type Request struct {
	Code      string
	SessionID string
	Attempt   int
	Timeout   time.Duration
}

// Executor runs candidate scripts in separate processes
type Executor struct {
	cfg Config
	sem *semaphore.Weighted
}

// New creates an executor, filling defaults for unset fields
func New(cfg Config) *Executor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.ScriptName == "" {
		cfg.ScriptName = "script.py"
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = "output"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Executor{cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxConcurrent)}
}

// Available reports whether scripts can be run at all
func (e *Executor) Available() error {
	if _, err := exec.LookPath(e.cfg.Interpreter); err != nil {
		return fmt.Errorf("interpreter %q not found: %w", e.cfg.Interpreter, err)
	}
	if err := os.MkdirAll(e.cfg.OutputRoot, 0755); err != nil {
		return fmt.Errorf("output root %s is not writable: %w", e.cfg.OutputRoot, err)
	}
	return nil
}

// Execute runs one script and always returns a finalized result.
// The process is killed and reaped on timeout and on ctx cancellation.
func (e *Executor) Execute(ctx context.Context, req Request) core.ExecutionResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	log := logger.WithSession(req.SessionID)

	workDir, err := e.workDir(req)
	result := core.NewExecutionResult(workDir)
	if err != nil {
		result.Finalize(core.StatusError, fmt.Sprintf("failed to prepare work dir: %v", err))
		return result
	}

	// the timeout covers time spent waiting for a free slot
	deadline := time.Now().Add(timeout)
	acquireCtx, cancel := context.WithDeadline(ctx, deadline)
	err = e.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			result.Finalize(core.StatusError, fmt.Sprintf("execution cancelled: %v", ctx.Err()))
		} else {
			result.Finalize(core.StatusTimeout, fmt.Sprintf("execution timed out after %s waiting for a free slot", timeout))
		}
		return result
	}
	defer e.sem.Release(1)

	scriptPath := filepath.Join(workDir, e.cfg.ScriptName)
	if err := os.WriteFile(scriptPath, []byte(req.Code), 0644); err != nil {
		result.Finalize(core.StatusError, fmt.Sprintf("failed to write script: %v", err))
		return result
	}
	before := takeSnapshot(workDir)

	args := append(append([]string{}, e.cfg.Args...), e.cfg.ScriptName)
	cmd := exec.Command(e.cfg.Interpreter, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Env = append(cmd.Env, "OUTPUT_DIR="+workDir, "MPLBACKEND=Agg", "PYTHONUNBUFFERED=1")
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	stdout := newLimitedWriter(e.cfg.MaxOutputBytes)
	stderr := newLimitedWriter(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		result.Finalize(core.StatusError, fmt.Sprintf("failed to start %s: %v", e.cfg.Interpreter, err))
		return result
	}
	log.Debug().Int("attempt", req.Attempt).Int("pid", cmd.Process.Pid).Str("work_dir", workDir).Msg("Script started")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var (
		status  core.ExecStatus
		message string
	)
	select {
	case waitErr := <-done:
		if cmd.ProcessState != nil && cmd.ProcessState.Success() {
			status = core.StatusSuccess
		} else {
			status = core.StatusError
			message = fmt.Sprintf("script failed: %v", waitErr)
		}
	case <-timer.C:
		_ = killProcessGroup(cmd)
		<-done
		status = core.StatusTimeout
		message = fmt.Sprintf("execution timed out after %s", timeout)
	case <-ctx.Done():
		_ = killProcessGroup(cmd)
		<-done
		status = core.StatusError
		message = fmt.Sprintf("execution cancelled: %v", ctx.Err())
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Truncated = stdout.truncated || stderr.truncated
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	result.GeneratedFiles, result.GeneratedTexts = collectArtifacts(workDir, before, scriptPath)
	result.Finalize(status, message)

	log.Info().
		Int("attempt", req.Attempt).
		Str("status", string(result.Status)).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Int("files", len(result.GeneratedFiles)+len(result.GeneratedTexts)).
		Msg("Script finished")

	return result
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// workDir creates a fresh directory per session and attempt
func (e *Executor) workDir(req Request) (string, error) {
	session := unsafePathChars.ReplaceAllString(req.SessionID, "_")
	if session == "" {
		session = "anonymous"
	}
	name := fmt.Sprintf("attempt-%d-%s", req.Attempt, uuid.NewString()[:8])
	dir, err := filepath.Abs(filepath.Join(e.cfg.OutputRoot, session, name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
