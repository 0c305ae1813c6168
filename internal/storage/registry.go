package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"astro_insight/internal/core"
	"astro_insight/pkg"
	"astro_insight/src/logger"
	"astro_insight/src/model"

	"github.com/google/uuid"
)

// Dispatcher advances a session by one user input
type Dispatcher interface {
	Dispatch(ctx context.Context, s *core.Session, input string) error
}

// Recorder keeps finished runs
type Recorder interface {
	Record(ctx context.Context, rec model.RunRecord) (int64, error)
}

// Registry maps session ids to sessions and serializes work per session
type Registry struct {
	store    Store
	router   Dispatcher
	recorder Recorder

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a registry. recorder may be nil.
func NewRegistry(store Store, router Dispatcher, recorder Recorder) *Registry {
	return &Registry{
		store:    store,
		router:   router,
		recorder: recorder,
		locks:    make(map[string]*sessionLock),
	}
}

// lock holds the per-session mutex until the returned func is called
func (r *Registry) lock(sessionID string) func() {
	r.mu.Lock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		r.locks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, sessionID)
		}
		r.mu.Unlock()
	}
}

// CreateOrContinue feeds input into the session, creating it when sessionID is
// empty or unknown, and returns what the front end should show
func (r *Registry) CreateOrContinue(ctx context.Context, sessionID, input string) (*pkg.SessionSnapshot, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return r.dispatch(ctx, sessionID, input, true)
}

// Continue feeds input into an existing session. An unknown id is ErrSessionNotFound,
// so a reply meant for a lost session is never taken as a fresh request.
func (r *Registry) Continue(ctx context.Context, sessionID, input string) (*pkg.SessionSnapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	return r.dispatch(ctx, sessionID, input, false)
}

func (r *Registry) dispatch(ctx context.Context, sessionID, input string, create bool) (*pkg.SessionSnapshot, error) {
	unlock := r.lock(sessionID)
	defer unlock()

	log := logger.WithSession(sessionID)

	s, err := r.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound) && create:
		s = core.NewSession(sessionID)
		log.Info().Msg("Session created")
	case err != nil:
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	turnStart := time.Now()
	before := s.UpdatedAt
	dispatchErr := r.router.Dispatch(ctx, s, input)

	// persist whatever progress was made even when the caller went away
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.Save(saveCtx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	if s.IsComplete && !s.UpdatedAt.Equal(before) {
		r.record(saveCtx, s, turnStart)
	}
	return s.Snapshot(), nil
}

// Get returns the current snapshot without running anything
func (r *Registry) Get(ctx context.Context, sessionID string) (*pkg.SessionSnapshot, error) {
	unlock := r.lock(sessionID)
	defer unlock()

	s, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Session returns a copy of the full session record
func (r *Registry) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	unlock := r.lock(sessionID)
	defer unlock()
	return r.store.Load(ctx, sessionID)
}

// Delete forgets a session
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	unlock := r.lock(sessionID)
	defer unlock()

	if _, err := r.store.Load(ctx, sessionID); err != nil {
		return err
	}
	return r.store.Delete(ctx, sessionID)
}

func (r *Registry) record(ctx context.Context, s *core.Session, started time.Time) {
	if r.recorder == nil {
		return
	}

	status := "completed"
	switch {
	case s.ErrorInfo != nil:
		status = "escalated"
	case s.Dialogue != nil && s.Dialogue.Status == core.DialogueCancelled:
		status = "cancelled"
	}

	rec := model.RunRecord{
		SessionID:      s.ID,
		UserInput:      s.UserInput,
		UserType:       s.UserType,
		TaskType:       string(s.TaskType),
		Status:         status,
		Answer:         s.Answer,
		GeneratedFiles: append(append([]string{}, s.GeneratedFiles...), s.GeneratedTexts...),
		RetryCount:     s.RetryCount,
		CreatedAt:      started,
		FinishedAt:     s.UpdatedAt,
	}
	for _, n := range s.NodeHistory {
		rec.NodePath = append(rec.NodePath, string(n))
	}

	if _, err := r.recorder.Record(ctx, rec); err != nil {
		logger.WithSession(s.ID).Warn().Err(err).Msg("Failed to record run history")
	}
}
