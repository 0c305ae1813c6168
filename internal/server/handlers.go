package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"astro_insight/internal/core"
	"astro_insight/internal/storage"
	"astro_insight/pkg"
	"astro_insight/src/logger"
	"astro_insight/src/model"

	"github.com/bytedance/sonic"
)

const maxBodyBytes = 1 << 20

// SessionService is the front-end call surface of the session registry
type SessionService interface {
	CreateOrContinue(ctx context.Context, sessionID, input string) (*pkg.SessionSnapshot, error)
	Continue(ctx context.Context, sessionID, input string) (*pkg.SessionSnapshot, error)
	Get(ctx context.Context, sessionID string) (*pkg.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// HistoryLister reads the run history
type HistoryLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]model.RunRecord, error)
}

// DatasetLister lists the configured datasets
type DatasetLister interface {
	Datasets() []core.Dataset
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Handlers holds the HTTP handler methods
type Handlers struct {
	sessions SessionService
	datasets DatasetLister
	history  HistoryLister
}

// NewHandlers creates handlers; history may be nil
func NewHandlers(sessions SessionService, datasets DatasetLister, history HistoryLister) *Handlers {
	return &Handlers{sessions: sessions, datasets: datasets, history: history}
}

// RegisterRoutes registers all API routes on the given mux
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("POST /api/sessions", h.HandleCreate)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.HandleMessage)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/datasets", h.HandleDatasets)
	mux.HandleFunc("GET /api/history", h.HandleHistory)
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreate starts a session with its first message
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req pkg.ContinueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.dispatch(w, r, req.SessionID, req.Input, http.StatusCreated)
}

// HandleMessage continues an existing session
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req pkg.ContinueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.sessions.Continue(r.Context(), id, req.Input)
	if errors.Is(err, storage.ErrSessionNotFound) {
		h.writeLookupError(w, err)
		return
	}
	h.reply(w, id, snap, err, http.StatusOK)
}

func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, id, input string, status int) {
	snap, err := h.sessions.CreateOrContinue(r.Context(), id, input)
	h.reply(w, id, snap, err, status)
}

func (h *Handlers) reply(w http.ResponseWriter, id string, snap *pkg.SessionSnapshot, err error, status int) {
	if err != nil {
		logger.WithSession(id).Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, snap)
}

// HandleGet returns the current snapshot of a session
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDelete forgets a session
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDatasets lists the datasets generated code can use
func (h *Handlers) HandleDatasets(w http.ResponseWriter, _ *http.Request) {
	datasets := h.datasets.Datasets()
	if datasets == nil {
		datasets = []core.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

// HandleHistory lists finished runs, newest first
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.history.List(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return errors.New("request body is not valid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
