// Package scheduler arbitrates between the agent's recurring behaviors.
//
// Every tick the scheduler launches at most one eligible task: one that is
// not already running and whose minimum interval has elapsed since it last
// finished. Tasks run on their own goroutines, so different tasks may
// overlap while a single task never re-enters itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTick is the scheduling resolution.
const DefaultTick = time.Second

// Task is a recurring behavior.
type Task struct {
	Name string

	// Priority is only consulted with WithPriorityTieBreak; lower wins.
	Priority int

	// MinInterval is the least time between the end of one run and the start of the next.
	MinInterval time.Duration

	Run func(ctx context.Context) error
}

// Status is a diagnostic view of one task.
type Status struct {
	Name        string        `json:"name"`
	Priority    int           `json:"priority"`
	MinInterval time.Duration `json:"minInterval"`
	LastRun     time.Time     `json:"lastRun,omitzero"`
	Running     bool          `json:"isRunning"`
	Runs        int64         `json:"runs"`
	Failures    int64         `json:"failures"`
	LastError   string        `json:"lastError,omitempty"`
}

// Observer is told about every finished run.
type Observer interface {
	TaskFinished(task string, d time.Duration, err error, panicked bool)
}

type entry struct {
	task    Task
	lastRun time.Time
	running bool
	runs    int64
	fails   int64
	lastErr string
}

// Scheduler runs registered tasks.
type Scheduler struct {
	tick     time.Duration
	now      func() time.Time
	tieBreak bool
	observer Observer
	logger   zerolog.Logger

	mu    sync.Mutex
	tasks []*entry
	wg    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets the scheduling resolution.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver reports finished runs, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithPriorityTieBreak picks the lowest Priority among simultaneously
// eligible tasks instead of the first registered one.
func WithPriorityTieBreak() Option {
	return func(s *Scheduler) { s.tieBreak = true }
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:   DefaultTick,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	s.logger = s.logger.With().Str("component", "scheduler").Logger()
	return s
}

// Register adds a task. Registration order is the selection order.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("%w: %q needs a name and a body", ErrInvalidTask, t.Name)
	}
	if t.MinInterval <= 0 {
		return fmt.Errorf("%w: %q needs a positive interval", ErrInvalidTask, t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.tasks {
		if e.task.Name == t.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name)
		}
	}
	s.tasks = append(s.tasks, &entry{task: t})
	return nil
}

// Run ticks until ctx is done, then waits for running tasks to return.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().Dur("tick", s.tick).Int("tasks", len(s.Snapshot())).Bool("priority_tie_break", s.tieBreak).Msg("scheduler started")

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass and returns the launched task's name.
func (s *Scheduler) Tick(ctx context.Context) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}

	s.mu.Lock()
	e := s.pickLocked(s.now())
	if e == nil {
		s.mu.Unlock()
		return "", false
	}
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.execute(ctx, e)
	return e.task.Name, true
}

// pickLocked returns the task to launch at now, or nil.
func (s *Scheduler) pickLocked(now time.Time) *entry {
	var best *entry
	for _, e := range s.tasks {
		if e.running {
			continue
		}
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.task.MinInterval {
			continue
		}
		if !s.tieBreak {
			return e
		}
		if best == nil || e.task.Priority < best.task.Priority {
			best = e
		}
	}
	return best
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	start := time.Now()
	var (
		err      error
		panicked bool
	)

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}

		s.mu.Lock()
		e.lastRun = s.now()
		e.running = false
		e.runs++
		if err != nil {
			e.fails++
			e.lastErr = err.Error()
		} else {
			e.lastErr = ""
		}
		s.mu.Unlock()

		d := time.Since(start)
		if err != nil {
			s.logger.Error().Err(err).Str("task", e.task.Name).Dur("duration", d).Bool("panic", panicked).Msg("task failed")
		} else {
			s.logger.Debug().Str("task", e.task.Name).Dur("duration", d).Msg("task finished")
		}
		if s.observer != nil {
			s.observer.TaskFinished(e.task.Name, d, err, panicked)
		}
	}()

	s.logger.Debug().Str("task", e.task.Name).Msg("task started")
	err = e.task.Run(ctx)
}

// Wait blocks until every launched task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Snapshot returns the status of every task in registration order.
func (s *Scheduler) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = Status{
			Name:        e.task.Name,
			Priority:    e.task.Priority,
			MinInterval: e.task.MinInterval,
			LastRun:     e.lastRun,
			Running:     e.running,
			Runs:        e.runs,
			Failures:    e.fails,
			LastError:   e.lastErr,
		}
	}
	return out
}
