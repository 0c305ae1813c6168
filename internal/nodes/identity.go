package nodes

import (
	"context"

	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"
)

// EmptyInputReply answers a turn that carried no text
const EmptyInputReply = "Please type a question or describe the analysis you need."

// IdentityNode decides whether the user gets a prose answer or a research task
type IdentityNode struct {
	classifier llm.Classifier
	labels     config.LabelSet
}

// NewIdentityNode creates the entry node
func NewIdentityNode(classifier llm.Classifier, labels config.LabelSet) *IdentityNode {
	return &IdentityNode{classifier: classifier, labels: labels}
}

// Execute classifies the user type
func (n *IdentityNode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	if input == "" {
		return core.Command{Goto: core.NodeEnd, Update: core.Update{
			Answer: core.Ptr(EmptyInputReply),
			Audit:  []core.AuditEntry{core.Audit(n.GetName(), "invalid_input", "", EmptyInputReply)},
		}}, nil
	}

	reply, err := classify(ctx, n.classifier, n.GetName(), llm.Fill(identityPrompt, map[string]string{
		"input":  input,
		"labels": labelList(n.labels.Labels),
	}))
	if err != nil {
		return core.Command{}, err
	}
	userType := llm.MatchLabel(reply, n.labels.Labels, n.labels.Default)
	logger.WithSession(s.ID).Debug().Str("user_type", userType).Msg("Identity resolved")

	next := core.NodeQAAgent
	if userType == "professional" {
		next = core.NodeTaskSelector
	}
	return core.Command{Goto: next, Update: core.Update{
		UserType: core.Ptr(userType),
		Audit:    []core.AuditEntry{core.Audit(n.GetName(), "identify", input, userType)},
	}}, nil
}

func (n *IdentityNode) GetName() core.NodeName {
	return core.NodeIdentityCheck
}

func (n *IdentityNode) Edges() []core.NodeName {
	return []core.NodeName{core.NodeQAAgent, core.NodeTaskSelector, core.NodeEnd}
}
