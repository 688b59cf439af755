package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semmidev/sqlship/internal/infrastructure/clock"
)

const DefaultPollInterval = time.Minute

// Task is one unit of scheduled work. Its error is reported, never
// escalated: the next trigger is the retry.
type Task func(ctx context.Context) error

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPollInterval sets how often the loop checks whether a trigger is due.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithSkipHook registers fn to be called for every trigger dropped because
// the previous run was still in flight.
func WithSkipHook(fn func(due time.Time)) Option {
	return func(s *Scheduler) { s.onSkip = fn }
}

// Scheduler runs a task immediately and then once per schedule period,
// with at most one run in flight. A trigger that comes due while the task
// is still running is skipped.
type Scheduler struct {
	schedule cron.Schedule
	clock    clock.Clock
	poll     time.Duration
	logger   Logger
	onSkip   func(time.Time)

	mu    sync.Mutex
	next  time.Time
	armed bool

	busy atomic.Bool
	wg   sync.WaitGroup
}

func New(schedule cron.Schedule, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedule: schedule,
		clock:    clock.System(),
		poll:     DefaultPollInterval,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fires task once right away, then polls until ctx is done. A run
// that has started is not cancelled; Run waits for it before returning.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.check(ctx, task)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.check(ctx, task)
		}
	}
}

// Next returns the time of the next trigger. It is zero before the first
// run.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Busy reports whether a run is in flight.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// check fires task if a trigger is due and reports whether it did.
func (s *Scheduler) check(ctx context.Context, task Task) bool {
	now := s.clock.Now()

	s.mu.Lock()
	due := now
	if s.armed {
		if now.Before(s.next) {
			s.mu.Unlock()
			return false
		}
		due = s.next
	}
	s.armed = true
	s.next = s.advance(due, now)
	next := s.next
	s.mu.Unlock()

	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warnf("Previous run still in flight, skipping trigger due at %s (next at %s)",
			due.Format(time.RFC3339), next.Format(time.RFC3339))
		if s.onSkip != nil {
			s.onSkip(due)
		}
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)

		if err := task(context.WithoutCancel(ctx)); err != nil {
			s.logger.Errorf("Scheduled run failed: %v", err)
		}
	}()
	return true
}

// advance returns the first trigger after due that is still in the future.
// Measuring from the scheduled time rather than the poll time keeps polling
// latency from accumulating; triggers missed entirely are dropped.
func (s *Scheduler) advance(due, now time.Time) time.Time {
	next := s.schedule.Next(due)
	for !next.After(now) {
		after := s.schedule.Next(next)
		if !after.After(next) {
			return now.Add(s.poll)
		}
		next = after
	}
	return next
}
