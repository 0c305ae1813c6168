package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"astro_insight/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecordAndList(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(ctx, filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	defer h.Close()

	start := time.Now().Add(-time.Second)
	id, err := h.Record(ctx, model.RunRecord{
		SessionID:      "a",
		UserInput:      "show the first 5 rows",
		UserType:       "professional",
		TaskType:       "retrieval",
		Status:         "completed",
		Answer:         "done",
		GeneratedFiles: []string{"/out/a.png"},
		NodePath:       []string{"identity_check", "task_selector", "retrieval"},
		CreatedAt:      start,
		FinishedAt:     start.Add(500 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = h.Record(ctx, model.RunRecord{SessionID: "b", Status: "escalated", RetryCount: 3})
	require.NoError(t, err)
	_, err = h.Record(ctx, model.RunRecord{SessionID: "a", Status: "cancelled"})
	require.NoError(t, err)

	all, err := h.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cancelled", all[0].Status)
	assert.Equal(t, 3, all[1].RetryCount)
	assert.Equal(t, []string{}, all[1].GeneratedFiles)

	onlyA, err := h.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	first := onlyA[1]
	assert.Equal(t, "show the first 5 rows", first.UserInput)
	assert.Equal(t, []string{"/out/a.png"}, first.GeneratedFiles)
	assert.Equal(t, []string{"identity_check", "task_selector", "retrieval"}, first.NodePath)
	assert.WithinDuration(t, start, first.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), first.FinishedAt, time.Millisecond)

	limited, err := h.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
