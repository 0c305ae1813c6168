package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"astro_insight/src/model"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT    NOT NULL,
	user_input      TEXT    NOT NULL DEFAULT '',
	user_type       TEXT    NOT NULL DEFAULT '',
	task_type       TEXT    NOT NULL DEFAULT '',
	status          TEXT    NOT NULL,
	answer          TEXT    NOT NULL DEFAULT '',
	generated_files TEXT    NOT NULL DEFAULT '[]',
	retry_count     INTEGER NOT NULL DEFAULT 0,
	node_path       TEXT    NOT NULL DEFAULT '[]',
	created_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
`

// History is the long-term run log kept in SQLite
type History struct {
	db *sql.DB
}

// OpenHistory opens (and creates) the run history database at path
func OpenHistory(ctx context.Context, path string) (*History, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// a single connection keeps writes serialized and :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record appends one finished run and returns its id
func (h *History) Record(ctx context.Context, rec model.RunRecord) (int64, error) {
	files, err := sonic.MarshalString(nonNil(rec.GeneratedFiles))
	if err != nil {
		return 0, fmt.Errorf("failed to encode generated files: %w", err)
	}
	path, err := sonic.MarshalString(nonNil(rec.NodePath))
	if err != nil {
		return 0, fmt.Errorf("failed to encode node path: %w", err)
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.FinishedAt
	}

	res, err := h.db.ExecContext(ctx, `
		INSERT INTO runs (session_id, user_input, user_type, task_type, status, answer,
			generated_files, retry_count, node_path, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserInput, rec.UserType, rec.TaskType, rec.Status, rec.Answer,
		files, rec.RetryCount, path, rec.CreatedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

// List returns the newest runs first. An empty sessionID lists every session.
func (h *History) List(ctx context.Context, sessionID string, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, session_id, user_input, user_type, task_type, status, answer,
		generated_files, retry_count, node_path, created_at, finished_at FROM runs`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []model.RunRecord
	for rows.Next() {
		var (
			rec               model.RunRecord
			files, path       string
			created, finished int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserInput, &rec.UserType, &rec.TaskType,
			&rec.Status, &rec.Answer, &files, &rec.RetryCount, &path, &created, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := sonic.UnmarshalString(files, &rec.GeneratedFiles); err != nil {
			return nil, fmt.Errorf("failed to decode generated files of run %d: %w", rec.ID, err)
		}
		if err := sonic.UnmarshalString(path, &rec.NodePath); err != nil {
			return nil, fmt.Errorf("failed to decode node path of run %d: %w", rec.ID, err)
		}
		rec.CreatedAt = time.UnixMilli(created)
		rec.FinishedAt = time.UnixMilli(finished)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
