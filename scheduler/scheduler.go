// Package scheduler runs a per-frame loop over a single target. One goroutine owns
// the target while the scheduler is running; work from other goroutines is handed
// to it with Post.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval approximates a 60Hz display refresh
const DefaultInterval = 16 * time.Millisecond

// Target is driven by the scheduler. Reset runs once before the first tick of
// every run; Tick runs once per frame.
type Target interface {
	Reset() error
	Tick()
}

// State of the scheduler
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Scheduler ticks a Target at a fixed interval
type Scheduler struct {
	target   Target
	interval time.Duration

	mu      sync.Mutex // serializes Start/Stop
	cancel  context.CancelFunc
	done    chan struct{}
	posts   chan func()
	onFrame func(frame uint64)

	state  atomic.Int32
	frames atomic.Uint64
}

// New creates a stopped scheduler. A non-positive interval uses DefaultInterval.
func New(target Target, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		target:   target,
		interval: interval,
	}
}

// OnFrame registers a hook run on the loop goroutine after every tick
func (s *Scheduler) OnFrame(fn func(frame uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

// State reports whether the loop is running
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Frames returns the number of ticks run since the scheduler was created
func (s *Scheduler) Frames() uint64 {
	return s.frames.Load()
}

// Start resets the target and begins ticking. If Reset fails the scheduler stays
// stopped and the error is returned. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		if s.State() == Running {
			return nil
		}
		// The parent context ended the previous run
		<-s.done
		s.cancel()
		s.cancel = nil
	}

	if err := s.target.Reset(); err != nil {
		log.Printf("scheduler: not starting: %v", err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.posts = make(chan func(), 64)
	s.state.Store(int32(Running))

	go s.loop(runCtx, s.posts, s.done, s.onFrame)
	return nil
}

// Stop cancels the pending tick and waits for the loop to exit. It must not be
// called from the loop goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Restart stops the loop, runs fn while nothing else touches the target, then
// starts again with a fresh Reset.
func (s *Scheduler) Restart(ctx context.Context, fn func()) error {
	s.Stop()
	if fn != nil {
		fn()
	}
	return s.Start(ctx)
}

// Post runs fn on the loop goroutine between ticks. When the scheduler is stopped
// fn runs immediately on the caller's goroutine. A post racing with Stop may be
// dropped.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	if s.cancel == nil {
		defer s.mu.Unlock()
		fn()
		return
	}
	posts, done := s.posts, s.done
	s.mu.Unlock()

	select {
	case posts <- fn:
	case <-done:
	}
}

func (s *Scheduler) loop(ctx context.Context, posts <-chan func(), done chan<- struct{}, onFrame func(uint64)) {
	defer close(done)
	defer s.state.Store(int32(Stopped))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-posts:
			fn()
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.target.Tick()
			n := s.frames.Add(1)
			if onFrame != nil {
				onFrame(n)
			}
		}
	}
}
