// Package repository is the facade the protocol layer talks to. It ties the
// store, the graph engine, the derivation pool and the sequencer together so
// that one call is one transaction plus, for documents, one derivation run.
package repository

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/artificer/config"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/graph"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/ontology"
	"github.com/teranos/artificer/sequencer"
	"github.com/teranos/artificer/storage"
)

// Repository serves artifact, query, ontology and audit operations
type Repository struct {
	store      *storage.SQLStore
	engine     *graph.Engine
	pipeline   *derive.Pipeline
	pool       *derive.Pool // nil runs derivation inline
	seq        *sequencer.Sequencer
	ontologies *ontology.Set
	logger     *zap.SugaredLogger

	mu  sync.RWMutex
	cfg config.Config
}

// New opens a repository over a migrated database. Stored ontologies are loaded
// into the classifier before New returns. With derivation.workers > 0 a worker
// pool is started under ctx; Close stops it.
func New(ctx context.Context, database *sql.DB, registry *derive.Registry, cfg *config.Config, log *zap.SugaredLogger) (*Repository, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if registry == nil {
		registry = derive.NewRegistry()
	}

	store := storage.NewSQLStore(database, log)
	engine := graph.NewEngine(log)

	onts, err := store.ListOntologies(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ontologies")
	}
	set := ontology.NewSet(onts...)
	store.SetClassifier(set)

	r := &Repository{
		store:      store,
		engine:     engine,
		pipeline:   derive.NewPipeline(store, engine, registry, cfg.Derivation.WorkDir, log),
		seq:        sequencer.New(),
		ontologies: set,
		logger:     log.Named("repository"),
		cfg:        *cfg,
	}

	if cfg.Derivation.Workers > 0 {
		poolCfg := derive.DefaultPoolConfig()
		poolCfg.Workers = cfg.Derivation.Workers
		poolCfg.QueueSize = cfg.Derivation.QueueSize
		poolCfg.RateLimit = cfg.Derivation.RateLimit
		r.pool = derive.NewPool(ctx, r.pipeline, r.seq, poolCfg, log)
		r.pool.Start()
	}

	r.logger.Infow("Repository ready",
		"workers", cfg.Derivation.Workers,
		logger.FieldOntology, set.Len(),
		logger.FieldPath, cfg.Database.Path)
	return r, nil
}

// Close stops the derivation pool. Queued jobs fail their waiters.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Stop()
	}
}

// Store exposes the underlying store for maintenance commands
func (r *Repository) Store() *storage.SQLStore {
	return r.store
}

// Registry returns the derivation registry
func (r *Repository) Registry() *derive.Registry {
	return r.pipeline.Registry()
}

// ApplyConfig swaps in the reloadable tunables of cfg: derivation rate limit,
// content size cap, query paging bounds, relink policy and the default user.
// Pool size and database path need a restart.
func (r *Repository) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.Derivation.RateLimit = cfg.Derivation.RateLimit
	r.cfg.Derivation.MaxContentBytes = cfg.Derivation.MaxContentBytes
	r.cfg.Query = cfg.Query
	r.cfg.Sequencing = cfg.Sequencing
	r.cfg.Repository = cfg.Repository
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.SetRateLimit(cfg.Derivation.RateLimit)
	}
	r.logger.Infow("Configuration reloaded",
		"rate_limit", cfg.Derivation.RateLimit,
		"max_count", cfg.Query.MaxCount)
	return nil
}

func (r *Repository) config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// user is the acting user for audit stamps
func (r *Repository) user(ctx context.Context) string {
	if u := logger.UserFromContext(ctx); u != "" {
		return u
	}
	return r.config().Repository.DefaultUser
}

func (r *Repository) log(ctx context.Context) *zap.SugaredLogger {
	return r.logger.With(logger.FieldsFromContext(ctx)...)
}
