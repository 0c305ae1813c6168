package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"astro_insight/internal/core"
	"astro_insight/internal/dataset"
	"astro_insight/internal/storage"
	"astro_insight/pkg"
	"astro_insight/src/model"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type dispatchFunc func(ctx context.Context, s *core.Session, input string) error

func (f dispatchFunc) Dispatch(ctx context.Context, s *core.Session, input string) error {
	return f(ctx, s, input)
}

// asks once, then completes on the second message
var twoTurn = dispatchFunc(func(_ context.Context, s *core.Session, input string) error {
	s.UserInput = input
	s.NodeHistory = append(s.NodeHistory, core.NodeVisualization)
	if s.AwaitingUserChoice || s.TaskType == core.TaskVisualization {
		s.AwaitingUserChoice = false
		s.IsComplete = true
		s.CurrentStep = core.NodeEnd
		s.Answer = "chart drawn"
		s.GeneratedFiles = []string{"/tmp/out/plot.png"}
	} else {
		s.TaskType = core.TaskVisualization
		s.AwaitingUserChoice = true
		s.CurrentStep = core.NodeVisualization
		s.Answer = "Which chart?"
	}
	s.UpdatedAt = time.Now()
	return nil
})

type fixture struct {
	handler  http.Handler
	registry *storage.Registry
	history  *storage.History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	history, err := storage.OpenHistory(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	reg := storage.NewRegistry(storage.NewMemoryStore(0), twoTurn, history)
	catalog := dataset.Static(core.Dataset{Name: "sdss", Path: "/data/sdss.csv", Columns: []string{"ra", "dec"}})

	srv := New(Config{}, NewHandlers(reg, catalog, history))
	return &fixture{handler: srv.Handler(), registry: reg, history: history}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/sessions", `{"input":"plot ra against dec"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[pkg.SessionSnapshot](t, rec)
	require.NotEmpty(t, first.SessionID)
	assert.True(t, first.AwaitingChoice)
	assert.False(t, first.IsComplete)
	assert.Equal(t, "Which chart?", first.AnswerText)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+first.SessionID+"/messages", `{"input":"scatter"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[pkg.SessionSnapshot](t, rec)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.True(t, second.IsComplete)
	assert.Equal(t, []string{"/tmp/out/plot.png"}, second.GeneratedFiles)

	rec = f.do(t, http.MethodGet, "/api/sessions/"+first.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chart drawn", decode[pkg.SessionSnapshot](t, rec).AnswerText)

	rec = f.do(t, http.MethodGet, "/api/history?session_id="+first.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]model.RunRecord](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "scatter", runs[0].UserInput)
	assert.Equal(t, "completed", runs[0].Status)

	rec = f.do(t, http.MethodDelete, "/api/sessions/"+first.SessionID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions/"+first.SessionID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageToUnknownSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/sessions/nope/messages", `{"input":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "session not found", body.Error)
	assert.Equal(t, http.StatusNotFound, body.Code)

	rec = f.do(t, http.MethodDelete, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing body", http.MethodPost, "/api/sessions", "", http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/api/sessions", "{not json", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/history?limit=zero", "", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/api/history?limit=-1", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/sessions", `{"input":"x"}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestDatasets(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]core.Dataset](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "sdss", got[0].Name)
	assert.Equal(t, []string{"ra", "dec"}, got[0].Columns)

	empty := New(Config{}, NewHandlers(f.registry, dataset.Static(), nil)).Handler()
	rec = httptest.NewRecorder()
	empty.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t)
	h := New(Config{}, NewHandlers(f.registry, dataset.Static(), nil)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	srv := New(Config{ShutdownTimeout: time.Second}, NewHandlers(f.registry, dataset.Static(), f.history))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
