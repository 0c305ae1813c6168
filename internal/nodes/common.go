package nodes

import (
	"context"
	"sort"
	"strings"

	"astro_insight/internal/coder"
	"astro_insight/internal/core"
	"astro_insight/internal/llm"
)

// CodeRunner is the synthesis loop as seen by task nodes
type CodeRunner interface {
	Run(ctx context.Context, req coder.Request) (*coder.Outcome, error)
}

// DatasetSource lists the datasets code may run against
type DatasetSource interface {
	Datasets() []core.Dataset
	Filter(names []string) []core.Dataset
	Names() []string
}

func labelList(labels []string) string {
	return strings.Join(labels, ", ")
}

// classify wraps transport failures as classifier NodeErrors
func classify(ctx context.Context, c llm.Classifier, node core.NodeName, prompt string) (string, error) {
	reply, err := c.Classify(ctx, prompt)
	if err != nil {
		return "", core.NewNodeError(node, core.KindClassifier, "classifier call failed", err)
	}
	return reply, nil
}

// runCode hands a request to the synthesis loop and turns its outcome into a Command.
// On failure the partial task and the retries spent still travel in the Update.
func runCode(ctx context.Context, runner CodeRunner, s *core.Session, node core.NodeName, query string, datasets []core.Dataset, update core.Update) (core.Command, error) {
	out, err := runner.Run(ctx, coder.Request{
		SessionID:   s.ID,
		Node:        node,
		Query:       query,
		Datasets:    datasets,
		RetriesUsed: s.RetryCount,
	})
	if out != nil {
		update.CodeTask = out.Task
		update.RetryCount = core.Ptr(out.RetriesUsed)
		update.Audit = append(update.Audit, out.Audit...)
	}
	if err != nil {
		return core.Command{Update: update}, err
	}

	update.Answer = core.Ptr(out.Answer())
	update.GeneratedFiles = append([]string{}, out.Result.GeneratedFiles...)
	update.GeneratedTexts = append([]string{}, out.Result.GeneratedTexts...)
	return core.Command{Goto: core.NodeEnd, Update: update}, nil
}

func sortedNodes(set map[core.NodeName]bool) []core.NodeName {
	out := make([]core.NodeName, 0, len(set))
	for n, ok := range set {
		if ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// mentioned returns the dataset names that appear in text
func mentioned(text string, names []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, name := range names {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			found = append(found, name)
		}
	}
	return found
}
