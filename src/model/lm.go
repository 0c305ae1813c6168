package model

import "time"

// RunRecord is one finished session turn kept in long-term run history
type RunRecord struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	UserInput      string    `json:"user_input"`
	UserType       string    `json:"user_type"`
	TaskType       string    `json:"task_type"`
	Status         string    `json:"status"` // completed, escalated, cancelled
	Answer         string    `json:"answer"`
	GeneratedFiles []string  `json:"generated_files"`
	RetryCount     int       `json:"retry_count"`
	NodePath       []string  `json:"node_path"`
	CreatedAt      time.Time `json:"created_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
