package core

import "astro_insight/pkg"

// Snapshot copies the front-end visible state of the session
func (s *Session) Snapshot() *pkg.SessionSnapshot {
	snap := &pkg.SessionSnapshot{
		SessionID:      s.ID,
		CurrentStep:    string(s.CurrentStep),
		IsComplete:     s.IsComplete,
		AwaitingChoice: s.AwaitingUserChoice,
		AnswerText:     s.Answer,
		GeneratedFiles: append([]string{}, s.GeneratedFiles...),
		GeneratedTexts: append([]string{}, s.GeneratedTexts...),
		RetryCount:     s.RetryCount,
		TaskType:       string(s.TaskType),
		UpdatedAt:      s.UpdatedAt,
	}
	for _, n := range s.NodeHistory {
		snap.NodeHistory = append(snap.NodeHistory, string(n))
	}
	if s.ErrorInfo != nil {
		snap.ErrorInfo = &pkg.ErrorSummary{
			Node:      string(s.ErrorInfo.Node),
			Kind:      string(s.ErrorInfo.Kind),
			Message:   s.ErrorInfo.Message,
			Timestamp: s.ErrorInfo.Timestamp,
		}
	}
	return snap
}
