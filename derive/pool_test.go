package derive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/derive"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/sequencer"
	"github.com/teranos/artificer/storage"
)

func TestPoolCompletesWaiters(t *testing.T) {
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(nil) }))
	seq := sequencer.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := derive.NewPool(ctx, e.pipeline, seq, derive.PoolConfig{Workers: 2, QueueSize: 4}, zaptest.NewLogger(t).Sugar())
	pool.Start()
	defer pool.Stop()

	doc := e.upload(t, "lines.txt", []byte("alpha"))
	future := seq.Subscribe(storage.PathOf(doc))
	require.NoError(t, pool.Submit(derive.Job{Primary: doc, Content: []byte("alpha")}))

	outcome, err := future.Wait(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, sequencer.Completed, outcome)

	derived, err := e.store.DerivedOf(ctx, doc.UUID)
	require.NoError(t, err)
	assert.Len(t, derived, 1)
}

func TestPoolFailsWaitersOnBuilderError(t *testing.T) {
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder {
		return elementBuilder(errors.New("bad input"))
	}))
	seq := sequencer.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := derive.NewPool(ctx, e.pipeline, seq, derive.PoolConfig{Workers: 1}, nil)
	pool.Start()
	defer pool.Stop()

	doc := e.upload(t, "lines.txt", []byte("alpha"))
	future := seq.Subscribe(storage.PathOf(doc))
	require.NoError(t, pool.Submit(derive.Job{Primary: doc, Content: []byte("alpha")}))

	outcome, err := future.Wait(ctx, 10*time.Second)
	assert.Equal(t, sequencer.Failed, outcome)
	assert.Equal(t, errors.KindDerivation, errors.KindOf(err))
}

func TestPoolSubmitBeforeStart(t *testing.T) {
	e := newEnv(t)
	pool := derive.NewPool(context.Background(), e.pipeline, nil, derive.DefaultPoolConfig(), nil)

	err := pool.Submit(derive.Job{Primary: artifact.New(artifact.TypeDocument, "x")})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestPoolStopFailsQueuedJobs(t *testing.T) {
	e := newEnv(t)
	seq := sequencer.New()
	pool := derive.NewPool(context.Background(), e.pipeline, seq,
		derive.PoolConfig{Workers: 1, QueueSize: 8, RateLimit: 0.001, ShutdownTimeout: time.Second}, nil)
	pool.Start()

	// the first job takes the only token; the rest wait behind the limiter
	var futures []*sequencer.Future
	for i := 0; i < 3; i++ {
		doc := e.upload(t, "lines.txt", []byte("alpha"))
		futures = append(futures, seq.Subscribe(storage.PathOf(doc)))
		require.NoError(t, pool.Submit(derive.Job{Primary: doc, Content: []byte("alpha")}))
	}
	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	for _, f := range futures[1:] {
		outcome, _ := f.Wait(context.Background(), 5*time.Second)
		assert.NotEqual(t, sequencer.TimedOut, outcome)
	}
}

func TestPoolRestartAfterStop(t *testing.T) {
	e := newEnv(t)
	e.registry.AddProvider(derive.TypeProvider(artifact.TypeDocument, func() derive.Builder { return elementBuilder(nil) }))
	seq := sequencer.New()
	pool := derive.NewPool(context.Background(), e.pipeline, seq, derive.PoolConfig{Workers: 2, QueueSize: 4}, zaptest.NewLogger(t).Sugar())

	pool.Start()
	pool.Stop()

	doc := e.upload(t, "lines.txt", []byte("alpha"))
	err := pool.Submit(derive.Job{Primary: doc, Content: []byte("alpha")})
	require.Error(t, err, "a stopped pool refuses work")
	assert.True(t, errors.IsRetryable(err))

	pool.Start()
	defer pool.Stop()

	future := seq.Subscribe(storage.PathOf(doc))
	require.NoError(t, pool.Submit(derive.Job{Primary: doc, Content: []byte("alpha")}))
	outcome, err := future.Wait(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, sequencer.Completed, outcome)
}

func TestPoolConcurrentSubmitAndStop(t *testing.T) {
	e := newEnv(t)
	seq := sequencer.New()
	pool := derive.NewPool(context.Background(), e.pipeline, seq,
		derive.PoolConfig{Workers: 1, QueueSize: 16, RateLimit: 0.001, ShutdownTimeout: time.Second}, nil)
	pool.Start()

	var futures []*sequencer.Future
	var jobs []derive.Job
	for i := 0; i < 8; i++ {
		doc := e.upload(t, "lines.txt", []byte("alpha"))
		futures = append(futures, seq.Subscribe(storage.PathOf(doc)))
		jobs = append(jobs, derive.Job{Primary: doc, Content: []byte("alpha")})
	}

	type result struct {
		i  int
		ok bool
	}
	results := make(chan result, len(jobs))
	for i, job := range jobs {
		go func(i int, job derive.Job) { results <- result{i, pool.Submit(job) == nil} }(i, job)
	}
	pool.Stop()

	// an accepted job is either run or failed by the drain, never left waiting
	for range jobs {
		r := <-results
		if !r.ok {
			continue
		}
		outcome, _ := futures[r.i].Wait(context.Background(), 5*time.Second)
		assert.NotEqual(t, sequencer.TimedOut, outcome, "job %d", r.i)
	}
}
