// Package sequencer lets a writer wait for derivation of the artifact it just wrote.
//
// A waiter subscribes to the artifact path before the write so the completion
// event cannot be missed; the derivation worker publishes Complete or Fail for
// that path when it is done. Waits are bounded: an abandoned or slow derivation
// surfaces as a retryable timeout while the derivation itself may still finish.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/artificer/errors"
)

// Outcome is how a wait ended
type Outcome int

const (
	Completed Outcome = iota
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Future is one pending wait on a path
type Future struct {
	path string
	seq  *Sequencer
	done chan struct{}
	once sync.Once
	err  error
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the path completes or fails
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the path is published, timeout elapses or ctx ends.
// The returned error is nil only for Completed. A timeout is a retryable
// repository error; a failure carries the derivation error.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) (Outcome, error) {
	defer f.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		if f.err != nil {
			return Failed, f.err
		}
		return Completed, nil
	case <-timer.C:
		return TimedOut, errors.WithDetail(
			errors.NewRepository(errors.CodeSequencingTimeout, true,
				errors.Newf("derivation of %s did not finish within %s", f.path, timeout)),
			f.path)
	case <-ctx.Done():
		return TimedOut, errors.NewRepository(errors.CodeSequencingTimeout, true,
			errors.Wrapf(ctx.Err(), "wait for %s abandoned", f.path))
	}
}

// Cancel drops the subscription; publishing to the path no longer reaches it
func (f *Future) Cancel() {
	f.seq.unsubscribe(f)
}

// Sequencer routes completion events to waiters by path
type Sequencer struct {
	mu      sync.Mutex
	waiters map[string][]*Future
}

// New creates an empty sequencer
func New() *Sequencer {
	return &Sequencer{waiters: make(map[string][]*Future)}
}

// Subscribe registers a wait on path. Call it before the write that triggers derivation.
func (s *Sequencer) Subscribe(path string) *Future {
	f := &Future{path: path, seq: s, done: make(chan struct{})}
	s.mu.Lock()
	s.waiters[path] = append(s.waiters[path], f)
	s.mu.Unlock()
	return f
}

// Complete releases every waiter on path
func (s *Sequencer) Complete(path string) {
	s.publish(path, nil)
}

// Fail releases every waiter on path with err. A nil err counts as a failure
// with a generic cause.
func (s *Sequencer) Fail(path string, err error) {
	if err == nil {
		err = errors.NewRepository(errors.CodeSequencingFailed, false, errors.Newf("derivation of %s failed", path))
	}
	s.publish(path, err)
}

// Pending returns the number of waiters on path
func (s *Sequencer) Pending(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters[path])
}

func (s *Sequencer) publish(path string, err error) {
	s.mu.Lock()
	waiters := s.waiters[path]
	delete(s.waiters, path)
	s.mu.Unlock()

	for _, f := range waiters {
		f.resolve(err)
	}
}

func (s *Sequencer) unsubscribe(f *Future) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[f.path]
	for i, w := range list {
		if w == f {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.waiters, f.path)
	} else {
		s.waiters[f.path] = list
	}
}
