package nodes

import (
	"context"
	"strings"

	"astro_insight/internal/core"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"
)

const maxExplainOutput = 1200

// Explanation is the model's reading of a finished visualization
type Explanation struct {
	Summary  string
	Insights []string
}

// Empty reports whether there is nothing to show
func (e Explanation) Empty() bool {
	return e.Summary == "" && len(e.Insights) == 0
}

// Render formats the summary and the first insight for the final answer
func (e Explanation) Render() string {
	var b strings.Builder
	if e.Summary != "" {
		b.WriteString("Summary:\n")
		b.WriteString(e.Summary)
	}
	if len(e.Insights) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Key insight: ")
		b.WriteString(e.Insights[0])
	}
	return b.String()
}

// ParseExplanation reads SUMMARY:/INSIGHT: lines. A reply without markers is taken as the summary.
func ParseExplanation(reply string) Explanation {
	var (
		e       Explanation
		summary []string
		marked  bool
	)
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SUMMARY:"):
			marked = true
			if v := strings.TrimSpace(line[len("SUMMARY:"):]); v != "" {
				summary = append(summary, v)
			}
		case strings.HasPrefix(upper, "INSIGHT:"):
			marked = true
			if v := strings.TrimSpace(line[len("INSIGHT:"):]); v != "" {
				e.Insights = append(e.Insights, v)
			}
		case marked && len(e.Insights) == 0 && line != "":
			summary = append(summary, line)
		}
	}
	if !marked {
		e.Summary = strings.TrimSpace(reply)
		return e
	}
	e.Summary = strings.Join(summary, " ")
	return e
}

// explain asks the model to interpret a successful run. Failures yield an empty explanation.
func explain(ctx context.Context, c llm.Classifier, sessionID string, task *core.CodeTask) Explanation {
	if c == nil || task == nil {
		return Explanation{}
	}
	result := task.LastResult()
	if result == nil || result.Status != core.StatusSuccess {
		return Explanation{}
	}

	output := strings.TrimSpace(result.Stdout)
	if len(output) > maxExplainOutput {
		output = output[:maxExplainOutput] + "\n..."
	}
	if output == "" {
		output = "(no output)"
	}
	files := append(append([]string{}, result.GeneratedFiles...), result.GeneratedTexts...)
	fileList := "(none)"
	if len(files) > 0 {
		fileList = "- " + strings.Join(files, "\n- ")
	}

	reply, err := c.Classify(ctx, llm.Fill(explainPrompt, map[string]string{
		"request": task.Request,
		"output":  output,
		"files":   fileList,
	}))
	if err != nil {
		logger.WithSession(sessionID).Warn().Err(err).Msg("Explanation failed, answering without it")
		return Explanation{}
	}
	return ParseExplanation(reply)
}
