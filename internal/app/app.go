// Package app assembles the engine from environment configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"astro_insight/internal/coder"
	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/dataset"
	"astro_insight/internal/dialogue"
	"astro_insight/internal/executor"
	"astro_insight/internal/llm"
	"astro_insight/internal/nodes"
	"astro_insight/internal/server"
	"astro_insight/internal/storage"
	"astro_insight/src"
	"astro_insight/src/logger"
)

// App holds every long-lived component of one process
type App struct {
	Config   *src.Config
	Policy   *config.Policy
	Catalog  *dataset.Catalog
	Executor *executor.Executor
	Router   *core.Router
	Registry *storage.Registry
	History  *storage.History

	// PersistentSessions is true when sessions outlive the process
	PersistentSessions bool

	closers []func() error
}

// Option customizes New
type Option func(*options)

type options struct {
	classifier llm.Classifier
	store      storage.Store
}

// WithClassifier skips building a chat model from LLMConfig
func WithClassifier(c llm.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithStore overrides the session store selection
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// New wires the engine. Callers must Close the returned App.
func New(ctx context.Context, cfg *src.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	policy, err := config.LoadPolicy(cfg.StorageConfig.PolicyPath)
	if err != nil {
		return nil, err
	}
	if cfg.DialogueConfig.MaxTurns > 0 {
		policy.Dialogue.MaxTurns = cfg.DialogueConfig.MaxTurns
	}

	a := &App{Config: cfg, Policy: policy}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.Catalog = dataset.NewCatalog(cfg.StorageConfig.DatasetDir)
	if err := a.Catalog.Load(); err != nil {
		return nil, fmt.Errorf("failed to load datasets: %w", err)
	}
	logger.Info().Int("datasets", len(a.Catalog.Datasets())).Str("dir", a.Catalog.Dir()).Msg("Dataset catalog loaded")

	classifier := o.classifier
	if classifier == nil {
		if strings.EqualFold(cfg.LLMConfig.Provider, llm.ProviderOllama) {
			if err := llm.CheckOllama(ctx, cfg.LLMConfig.BaseURL, cfg.LLMConfig.Model); err != nil {
				return nil, err
			}
		}
		c, err := llm.NewClassifier(ctx, cfg.LLMConfig)
		if err != nil {
			return nil, err
		}
		classifier = c
	}

	a.Executor = executor.New(executor.ConfigFromModel(cfg.ExecutorConfig))
	if err := a.Executor.Available(); err != nil {
		// not fatal: code tasks escalate with a configuration error
		logger.Warn().Err(err).Msg("Execution sandbox unavailable")
	}

	validator, err := coder.NewPythonValidator(policy.Coder.ForbiddenPatterns)
	if err != nil {
		return nil, err
	}
	loop := coder.NewLoop(classifier, a.Executor, validator, coder.Config{
		MaxRetry: policy.Coder.MaxRetry,
		Timeout:  cfg.ExecutorConfig.Timeout,
	})

	a.Router, err = nodes.NewRouter(nodes.Deps{
		Classifier: classifier,
		Policy:     policy,
		Runner:     loop,
		Datasets:   a.Catalog,
		Dialogue:   dialogue.NewManager(classifier, policy.Dialogue, a.Catalog.Names),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	if path := cfg.StorageConfig.HistoryPath; path != "" {
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create history dir: %w", err)
			}
		}
		a.History, err = storage.OpenHistory(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.History.Close)
	}

	var recorder storage.Recorder
	if a.History != nil {
		recorder = a.History
	}
	a.Registry = storage.NewRegistry(store, a.Router, recorder)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	rc := a.Config.RedisConfig
	if rc.URL == "" {
		logger.Info().Msg("Using in-memory session store")
		return storage.NewMemoryStore(a.Config.StorageConfig.SessionTTL), nil
	}
	rs, err := storage.NewRedisStore(ctx, rc.URL, rc.TTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs.Close)
	a.PersistentSessions = true
	logger.Info().Msg("Using Redis session store")
	return rs, nil
}

// Server builds the HTTP front end over the registry
func (a *App) Server() *server.Server {
	var history server.HistoryLister
	if a.History != nil {
		history = a.History
	}
	return server.New(server.Config{
		Addr:            a.Config.ServerConfig.Addr,
		ShutdownTimeout: a.Config.ServerConfig.ShutdownTimeout,
	}, server.NewHandlers(a.Registry, a.Catalog, history))
}

// Close releases stores in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
