package derive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/logger"
	"github.com/teranos/artificer/metrics"
	"github.com/teranos/artificer/storage"
)

// Notifier learns how the derivation of a primary path ended
type Notifier interface {
	Complete(path string)
	Fail(path string, err error)
}

// poolLogger wraps zap.SugaredLogger with lifecycle markers:
// DEBUG level → STARTING (✿), WARN level → CLOSING (❀)
type poolLogger struct {
	*zap.SugaredLogger
}

func (l poolLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

func (l poolLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Job is one queued derivation
type Job struct {
	Primary *artifact.Artifact
	Content []byte
	Options RunOptions
}

// PoolConfig contains configuration for the derivation pool
type PoolConfig struct {
	Workers         int           `json:"workers"`          // Number of concurrent derivations
	QueueSize       int           `json:"queue_size"`       // Jobs accepted before Submit fails
	RateLimit       float64       `json:"rate_limit"`       // Derivations per second, 0 for unlimited
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // How long Stop waits for in-flight jobs
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         2,
		QueueSize:       64,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs derivations on a bounded set of workers. It is the only place
// derivation goroutines are started.
type Pool struct {
	pipeline  *Pipeline
	notifier  Notifier
	cfg       PoolConfig
	jobs      chan Job
	limiter   *rate.Limiter
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    poolLogger
	mu        sync.Mutex
	running   bool
}

// NewPool creates a stopped pool. Workers stop when ctx is cancelled.
func NewPool(ctx context.Context, pipeline *Pipeline, notifier Notifier, cfg PoolConfig, log *zap.SugaredLogger) *Pool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	workerCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		pipeline:  pipeline,
		notifier:  notifier,
		cfg:       cfg,
		jobs:      make(chan Job, cfg.QueueSize),
		limiter:   rate.NewLimiter(limitOf(cfg.RateLimit), 1),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    poolLogger{log.Named("pool")},
	}
}

func limitOf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// SetRateLimit changes the derivation rate of a running pool
func (p *Pool) SetRateLimit(perSecond float64) {
	p.limiter.SetLimit(limitOf(perSecond))
}

// Start launches the workers. Starting a running pool does nothing. Each
// worker keeps the context it was launched with, so a restart never changes
// what an older worker observes.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	if p.ctx.Err() != nil {
		p.ctx, p.cancel = context.WithCancel(p.parentCtx)
		p.logger.Starting("Recreated pool context after previous shutdown")
	}
	p.running = true

	p.logger.Starting("Starting derivation pool", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
	ctx := p.ctx
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a derivation. A full queue is a retryable busy error; the
// caller is told rather than blocked. The lock is held across the enqueue so
// no job lands after Stop has drained the queue.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return errors.NewRepository(errors.CodeBusy, true, errors.New("derivation pool is not running"))
	}

	select {
	case p.jobs <- job:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return errors.WithHint(
			errors.NewRepository(errors.CodeBusy, true, errors.Newf("derivation queue full (%d jobs)", p.cfg.QueueSize)),
			"retry once queued derivations have drained")
	}
}

// Stop cancels the workers and waits for in-flight derivations up to the shutdown timeout.
// Queued jobs that never started are failed so their waiters do not hang.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Infow("❀ Derivation pool stopped - all workers exited cleanly")
	case <-time.After(p.cfg.ShutdownTimeout):
		p.logger.Closing("Derivation pool stop timed out - derivations may still be running", "timeout", p.cfg.ShutdownTimeout)
	}
	p.drain()
}

func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			p.notify(job, errPoolStopped())
		default:
			metrics.SetQueueDepth(0)
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			metrics.SetQueueDepth(len(p.jobs))
			if err := p.limiter.Wait(ctx); err != nil {
				// cancelled while throttled; Stop may already have drained
				p.notify(job, errPoolStopped())
				return
			}
			p.process(ctx, id, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, id int, job Job) {
	_, err := p.pipeline.Run(ctx, job.Primary, job.Content, job.Options)
	if err != nil && ctx.Err() == nil {
		p.logger.Errorw("Worker derivation failed",
			"worker_id", id,
			logger.FieldArtifactUUID, job.Primary.UUID,
			logger.FieldError, err)
	}
	p.notify(job, err)
}

func errPoolStopped() error {
	return errors.NewRepository(errors.CodeSequencingFailed, false,
		errors.New("derivation pool stopped before the job ran"))
}

func (p *Pool) notify(job Job, err error) {
	if p.notifier == nil {
		return
	}
	path := storage.PathOf(job.Primary)
	if err != nil {
		p.notifier.Fail(path, err)
		return
	}
	p.notifier.Complete(path)
}
