package nodes

import (
	"context"
	"fmt"
	"strings"

	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/llm"
)

// ClassificationNode labels a celestial object. It is the only node error_recovery re-runs.
type ClassificationNode struct {
	classifier llm.Classifier
	labels     config.LabelSet
}

func NewClassificationNode(classifier llm.Classifier, labels config.LabelSet) *ClassificationNode {
	return &ClassificationNode{classifier: classifier, labels: labels}
}

func (n *ClassificationNode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	reply, err := classify(ctx, n.classifier, n.GetName(), llm.Fill(classificationPrompt, map[string]string{
		"input":  input,
		"labels": labelList(n.labels.Labels),
	}))
	if err != nil {
		return core.Command{}, err
	}

	label := llm.MatchLabel(firstField(reply), n.labels.Labels, "")
	if label == "" {
		label = llm.MatchLabel(reply, n.labels.Labels, "")
	}
	if label == "" {
		return core.Command{}, core.NewNodeError(n.GetName(), core.KindClassifier, fmt.Sprintf("model returned no allowed label: %q", truncate(reply, 80)), nil)
	}

	answer := "Classification: " + label
	if reason := reasonOf(reply); reason != "" {
		answer += "\n" + reason
	}
	return core.Command{Goto: core.NodeEnd, Update: core.Update{
		Answer: core.Ptr(answer),
		Audit:  []core.AuditEntry{core.Audit(n.GetName(), "classify", input, label)},
	}}, nil
}

func (n *ClassificationNode) GetName() core.NodeName {
	return core.NodeClassification
}

func (n *ClassificationNode) Edges() []core.NodeName {
	return []core.NodeName{core.NodeEnd}
}

func firstField(reply string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(reply), ":")
	return head
}

func reasonOf(reply string) string {
	_, reason, ok := strings.Cut(strings.TrimSpace(reply), ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
