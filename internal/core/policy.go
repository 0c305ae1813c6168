package core

import "fmt"

// MaxRetry bounds Session.RetryCount
const MaxRetry = 3

// RecoveryDecision is the outcome of one error_recovery visit
type RecoveryDecision struct {
	Escalate bool
	Reason   string
	// Target is the node to re-run when retrying
	Target NodeName
}

// RecoveryPolicy decides between retrying a failed node and escalating
type RecoveryPolicy struct {
	MaxRetry  int
	Retryable map[NodeName]bool
}

// DefaultRecoveryPolicy retries only the classification node
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		MaxRetry:  MaxRetry,
		Retryable: map[NodeName]bool{NodeClassification: true},
	}
}

// Decide applies the policy to the session's current error
func (p RecoveryPolicy) Decide(s *Session) RecoveryDecision {
	info := s.ErrorInfo
	switch {
	case info == nil:
		return RecoveryDecision{Escalate: true, Reason: "no error information recorded"}
	case s.RetryCount >= p.MaxRetry || info.Exhausted:
		return RecoveryDecision{Escalate: true, Reason: "retry budget exhausted"}
	case info.Node == s.LastErrorNode && s.RetryCount > 0:
		return RecoveryDecision{Escalate: true, Reason: "same step failed again"}
	case info.Kind == KindConfiguration:
		return RecoveryDecision{Escalate: true, Reason: "configuration error"}
	case !p.Retryable[info.Node]:
		return RecoveryDecision{Escalate: true, Reason: "step is not retryable"}
	}
	return RecoveryDecision{Reason: "retrying " + string(info.Node), Target: info.Node}
}

// EscalationMessage is the degraded answer shown to the user
func EscalationMessage(s *Session, reason string) string {
	node, message := NodeName("unknown"), "unknown error"
	if s.ErrorInfo != nil {
		node, message = s.ErrorInfo.Node, s.ErrorInfo.Message
	}
	return fmt.Sprintf(
		"Sorry, I could not complete this request (%s).\nFailing step: %s\nLast error: %s\nRetries attempted: %d\nTry again with a simpler or more specific request.",
		reason, node, message, s.RetryCount,
	)
}
