package coder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"astro_insight/internal/core"
	"astro_insight/internal/dataset"
	"astro_insight/internal/executor"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"
)

// AttemptFailure.Type values
const (
	FailureSyntax     = "syntax_error"
	FailureUnsafe     = "unsafe_code"
	FailureExecution  = "execution_error"
	FailureTimeout    = "timeout"
	FailureGeneration = "generation_error"
)

const (
	maxErrorChars  = 2000
	maxOutputChars = 2000
)

// Runner executes one candidate script
type Runner interface {
	Execute(ctx context.Context, req executor.Request) core.ExecutionResult
	Available() error
}

// Validator statically checks a script before it may run
type Validator interface {
	Validate(ctx context.Context, code string) error
}

// Config bounds the loop
type Config struct {
	// MaxRetry is the failed-attempt budget, shared with the session retry count
	MaxRetry int
	// Timeout per execution, zero uses the runner default
	Timeout time.Duration
}

// Loop generates, validates, runs and rewrites code until it succeeds or the budget is spent
type Loop struct {
	classifier llm.Classifier
	runner     Runner
	validator  Validator
	cfg        Config
}

// NewLoop wires a synthesis loop
func NewLoop(classifier llm.Classifier, runner Runner, validator Validator, cfg Config) *Loop {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = core.MaxRetry
	}
	return &Loop{classifier: classifier, runner: runner, validator: validator, cfg: cfg}
}

// Request is one analysis request
type Request struct {
	SessionID string
	// Node is reported as the failing step on error
	Node     core.NodeName
	Query    string
	Datasets []core.Dataset
	// RetriesUsed is the session retry count on entry
	RetriesUsed int
}

// Outcome is returned by Run on success and failure alike
type Outcome struct {
	Task        *core.CodeTask
	Result      *core.ExecutionResult
	RetriesUsed int
	Audit       []core.AuditEntry
}

func (o *Outcome) record(node core.NodeName, action, in, out string) {
	o.Audit = append(o.Audit, core.Audit(node, action, in, out))
}

// Answer renders the successful result for the user
func (o *Outcome) Answer() string {
	if o.Result == nil || o.Task == nil {
		return ""
	}
	var b strings.Builder
	name := "unknown"
	if o.Task.Dataset != nil {
		name = o.Task.Dataset.Name
	}
	fmt.Fprintf(&b, "Analysis finished in %d attempt(s) on dataset %s (%s, %s).\n",
		o.Task.Attempt, name, o.Task.Complexity, o.Result.Duration.Round(time.Millisecond))

	if out := strings.TrimSpace(o.Result.Stdout); out != "" {
		if len(out) > maxOutputChars {
			out = out[:maxOutputChars] + "\n..."
		}
		b.WriteString("\nOutput:\n")
		b.WriteString(out)
		b.WriteString("\n")
	}

	files := append(append([]string{}, o.Result.GeneratedFiles...), o.Result.GeneratedTexts...)
	if len(files) > 0 {
		b.WriteString("\nGenerated files:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run drives one CodeTask to completion. The returned Outcome is never nil, so callers
// can keep the partial task and the retries spent when err is a *core.NodeError.
func (l *Loop) Run(ctx context.Context, req Request) (*Outcome, error) {
	task := core.NewCodeTask(req.SessionID, req.Query)
	out := &Outcome{Task: task, RetriesUsed: req.RetriesUsed}
	log := logger.WithSession(req.SessionID)

	ds, err := l.selectDataset(ctx, req, out)
	if err != nil {
		return out, err
	}
	task.Dataset = ds
	task.Complexity = l.analyzeComplexity(ctx, req, ds, out)

	if err := l.runner.Available(); err != nil {
		return out, core.NewNodeError(req.Node, core.KindConfiguration, "execution sandbox unavailable", err)
	}

	var last *core.AttemptFailure
	for {
		if out.RetriesUsed >= l.cfg.MaxRetry {
			return out, exhausted(req.Node, task, last)
		}
		if err := ctx.Err(); err != nil {
			return out, core.NewNodeError(req.Node, core.KindExecution, "code synthesis interrupted", err)
		}

		failure, err := l.attempt(ctx, req, task, last, out)
		if err != nil {
			return out, core.NewNodeError(req.Node, core.KindExecution, "code synthesis interrupted", err)
		}
		if failure == nil {
			log.Info().
				Int("attempt", task.Attempt).
				Str("dataset", ds.Name).
				Str("complexity", string(task.Complexity)).
				Msg("Code task completed")
			return out, nil
		}

		task.Failures = append(task.Failures, *failure)
		out.RetriesUsed++
		out.record(req.Node, "error_recovery", failure.Type, fmt.Sprintf("attempt %d failed, %d/%d retries used", failure.Attempt, out.RetriesUsed, l.cfg.MaxRetry))
		log.Warn().
			Int("attempt", failure.Attempt).
			Str("type", failure.Type).
			Int("retry_count", out.RetriesUsed).
			Msg("Code attempt failed")
		last = failure
	}
}

func (l *Loop) selectDataset(ctx context.Context, req Request, out *Outcome) (*core.Dataset, error) {
	switch len(req.Datasets) {
	case 0:
		out.record(req.Node, "dataset_selection", req.Query, "no datasets available")
		return nil, core.NewNodeError(req.Node, core.KindConfiguration, "no datasets available for analysis", nil)
	case 1:
		ds := req.Datasets[0]
		out.record(req.Node, "dataset_selection", req.Query, ds.Name)
		return &ds, nil
	}

	prompt := llm.Fill(datasetSelectionPrompt, map[string]string{
		"request":  req.Query,
		"datasets": strings.TrimRight(dataset.Summary(req.Datasets), "\n"),
	})
	idx := 0
	reply, err := l.classifier.Classify(ctx, prompt)
	if err != nil {
		logger.WithSession(req.SessionID).Warn().Err(err).Msg("Dataset selection failed, using first dataset")
	} else {
		idx = ParseIndex(reply, len(req.Datasets))
	}

	ds := req.Datasets[idx]
	out.record(req.Node, "dataset_selection", req.Query, ds.Name)
	return &ds, nil
}

func (l *Loop) analyzeComplexity(ctx context.Context, req Request, ds *core.Dataset, out *Outcome) core.Complexity {
	prompt := llm.Fill(complexityPrompt, datasetVars(req.Query, ds))
	complexity := core.ComplexityModerate
	reply, err := l.classifier.Classify(ctx, prompt)
	if err != nil {
		logger.WithSession(req.SessionID).Warn().Err(err).Msg("Complexity analysis failed, assuming moderate")
	} else {
		complexity = ParseComplexity(reply)
	}
	out.record(req.Node, "complexity_analysis", req.Query, string(complexity))
	return complexity
}

// attempt runs one generate, validate, execute step. It returns nil on success.
// attempt runs one generate, validate, execute cycle. A non-nil error means ctx ended
// and the cycle must not be charged to the retry budget.
func (l *Loop) attempt(ctx context.Context, req Request, task *core.CodeTask, last *core.AttemptFailure, out *Outcome) (*core.AttemptFailure, error) {
	action, prompt := "code_generation", l.generationPrompt(task)
	if last != nil && last.Code != "" {
		action, prompt = "code_rewrite", l.rewritePrompt(task, last)
	}

	reply, err := l.classifier.Classify(ctx, prompt)
	code := ""
	if err == nil {
		code = CleanCode(reply)
	}
	task.AddCode(code)
	n := task.Attempt

	if err != nil {
		out.record(req.Node, action, fmt.Sprintf("attempt %d", n), err.Error())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &core.AttemptFailure{Type: FailureGeneration, Message: err.Error(), Attempt: n}, nil
	}
	out.record(req.Node, action, fmt.Sprintf("attempt %d", n), fmt.Sprintf("%d bytes of code", len(code)))

	if err := l.validator.Validate(ctx, code); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		typ := FailureSyntax
		var unsafe *UnsafeCodeError
		if errors.As(err, &unsafe) {
			typ = FailureUnsafe
		}
		out.record(req.Node, "syntax_check", fmt.Sprintf("attempt %d", n), err.Error())
		return &core.AttemptFailure{Type: typ, Code: code, Message: err.Error(), Attempt: n}, nil
	}

	result := l.runner.Execute(ctx, executor.Request{
		Code:      code,
		SessionID: req.SessionID,
		Attempt:   n,
		Timeout:   l.cfg.Timeout,
	})
	task.ExecutionHistory = append(task.ExecutionHistory, result)
	out.record(req.Node, "code_execution", fmt.Sprintf("attempt %d", n), string(result.Status))

	switch {
	case result.Status == core.StatusSuccess:
		out.Result = task.LastResult()
		return nil, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case result.Status == core.StatusTimeout:
		return &core.AttemptFailure{Type: FailureTimeout, Code: code, Message: tail(result.ErrorMessage(), maxErrorChars), Attempt: n}, nil
	default:
		return &core.AttemptFailure{Type: FailureExecution, Code: code, Message: tail(result.ErrorMessage(), maxErrorChars), Attempt: n}, nil
	}
}

func (l *Loop) generationPrompt(task *core.CodeTask) string {
	vars := datasetVars(task.Request, task.Dataset)
	vars["complexity"] = string(task.Complexity)
	vars["guidance"] = complexityGuidance[task.Complexity]
	return llm.Fill(generationPrompt, vars)
}

func (l *Loop) rewritePrompt(task *core.CodeTask, last *core.AttemptFailure) string {
	vars := datasetVars(task.Request, task.Dataset)
	vars["attempt"] = fmt.Sprint(last.Attempt)
	vars["failure"] = strings.ReplaceAll(last.Type, "_", " ")
	vars["error"] = last.Message
	vars["code"] = last.Code
	return llm.Fill(rewritePrompt, vars)
}

func exhausted(node core.NodeName, task *core.CodeTask, last *core.AttemptFailure) error {
	if last == nil {
		ne := core.NewNodeError(node, core.KindExecution, "retry budget already spent", nil)
		ne.Exhausted = true
		return ne
	}

	kind := core.KindExecution
	switch last.Type {
	case FailureSyntax, FailureUnsafe:
		kind = core.KindSyntax
	case FailureGeneration:
		kind = core.KindClassifier
	}
	ne := core.NewNodeError(node, kind, fmt.Sprintf("code failed after %d attempt(s), last %s: %s", task.Attempt, last.Type, last.Message), nil)
	ne.Exhausted = true
	return ne
}

// tail keeps the end of s, where tracebacks put the actual error
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
