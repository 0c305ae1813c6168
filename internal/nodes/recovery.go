package nodes

import (
	"context"

	"astro_insight/internal/core"
	"astro_insight/src/logger"
)

// RecoveryNode is the only place that chooses between retrying and escalating
type RecoveryNode struct {
	policy core.RecoveryPolicy
}

func NewRecoveryNode(policy core.RecoveryPolicy) *RecoveryNode {
	return &RecoveryNode{policy: policy}
}

// Execute never fails; every visit ends in a retry or a terminal answer
func (n *RecoveryNode) Execute(_ context.Context, s *core.Session, _ string) (core.Command, error) {
	d := n.policy.Decide(s)
	log := logger.WithSession(s.ID)

	failed := core.NodeName("")
	if s.ErrorInfo != nil {
		failed = s.ErrorInfo.Node
	}

	if d.Escalate {
		log.Warn().
			Str("failed_node", string(failed)).
			Int("retry_count", s.RetryCount).
			Str("reason", d.Reason).
			Msg("Escalating")
		return core.Command{Goto: core.NodeEnd, Update: core.Update{
			Answer:     core.Ptr(core.EscalationMessage(s, d.Reason)),
			IsComplete: core.Ptr(true),
			Audit:      []core.AuditEntry{core.Audit(n.GetName(), "escalate", string(failed), d.Reason)},
		}}, nil
	}

	log.Info().Str("target", string(d.Target)).Int("retry_count", s.RetryCount+1).Msg("Retrying step")
	return core.Command{Goto: d.Target, Update: core.Update{
		RetryCount:    core.Ptr(s.RetryCount + 1),
		LastErrorNode: core.Ptr(failed),
		ClearError:    true,
		Audit:         []core.AuditEntry{core.Audit(n.GetName(), "retry", string(failed), d.Reason)},
	}}, nil
}

func (n *RecoveryNode) GetName() core.NodeName {
	return core.NodeErrorRecovery
}

func (n *RecoveryNode) Edges() []core.NodeName {
	return append(sortedNodes(n.policy.Retryable), core.NodeEnd)
}
