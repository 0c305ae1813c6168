package nodes

import (
	"context"
	"fmt"
	"strings"

	"astro_insight/internal/core"
	"astro_insight/internal/llm"
)

// QANode answers general questions in prose
type QANode struct {
	classifier   llm.Classifier
	historyTurns int
}

// NewQANode creates the Q&A node; historyTurns bounds the transcript sent along
func NewQANode(classifier llm.Classifier, historyTurns int) *QANode {
	return &QANode{classifier: classifier, historyTurns: historyTurns}
}

func (n *QANode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	// the current question is already the last transcript entry
	recent := s.RecentMessages(n.historyTurns + 1)
	if len(recent) > 0 && recent[len(recent)-1].Role == "user" {
		recent = recent[:len(recent)-1]
	}

	var history strings.Builder
	for _, m := range recent {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}
	if history.Len() == 0 {
		history.WriteString("(none)\n")
	}

	reply, err := classify(ctx, n.classifier, n.GetName(), llm.Fill(qaPrompt, map[string]string{
		"history": strings.TrimRight(history.String(), "\n"),
		"input":   input,
	}))
	if err != nil {
		return core.Command{}, err
	}
	answer := strings.TrimSpace(reply)
	if answer == "" {
		return core.Command{}, core.NewNodeError(n.GetName(), core.KindClassifier, "empty answer from model", nil)
	}

	return core.Command{Goto: core.NodeEnd, Update: core.Update{
		TaskType: core.Ptr(core.TaskQA),
		Answer:   core.Ptr(answer),
		Audit:    []core.AuditEntry{core.Audit(n.GetName(), "answer", input, fmt.Sprintf("%d chars", len(answer)))},
	}}, nil
}

func (n *QANode) GetName() core.NodeName {
	return core.NodeQAAgent
}

func (n *QANode) Edges() []core.NodeName {
	return []core.NodeName{core.NodeEnd}
}
