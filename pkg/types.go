package pkg

import (
	"time"
)

// Front-end facing types shared by the CLI and the HTTP server

// ErrorSummary is the user-visible part of a session error
type ErrorSummary struct {
	Node      string    `json:"node"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSnapshot is what a front end sees after each request
type SessionSnapshot struct {
	SessionID      string        `json:"session_id"`
	CurrentStep    string        `json:"current_step"`
	IsComplete     bool          `json:"is_complete"`
	AwaitingChoice bool          `json:"awaiting_choice"`
	AnswerText     string        `json:"answer_text"`
	GeneratedFiles []string      `json:"generated_files"`
	GeneratedTexts []string      `json:"generated_texts,omitempty"`
	ErrorInfo      *ErrorSummary `json:"error_info,omitempty"`
	RetryCount     int           `json:"retry_count"`
	TaskType       string        `json:"task_type,omitempty"`
	NodeHistory    []string      `json:"node_history"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ContinueRequest is the body of a message sent to a session
type ContinueRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Input     string `json:"input"`
}
