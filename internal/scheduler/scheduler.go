// Package scheduler runs recurring background jobs, such as the weekly health analysis,
// from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultWeeklyAnalysis runs the weekly analysis every Monday at 08:00.
const DefaultWeeklyAnalysis = "0 8 * * 1"

// Standard 5-field cron parser (min, hour, dom, month, dow).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr is a schedule the Scheduler accepts.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr after t, in t's location.
func NextRun(expr string, t time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched.Next(t), nil
}

// Job is a scheduled task. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	ids map[string]cron.EntryID
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	loc *time.Location
}

// WithLocation evaluates schedules in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// NewScheduler creates and starts a cron scheduler. Panicking jobs are recovered and a job
// still running when its next slot arrives is skipped.
func NewScheduler(opts ...Option) *Scheduler {
	o := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	logger := cron.VerbosePrintfLogger(slogPrintf{})
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(o.loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start()
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel, ids: make(map[string]cron.EntryID)}
}

// AddJob schedules a named task using the provided cron expression. Adding a job under an
// existing name replaces it. It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, job Job) error {
	id, err := s.cron.AddFunc(expr, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.mu.Lock()
	if old, ok := s.ids[name]; ok {
		s.cron.Remove(old)
	}
	s.ids[name] = id
	s.mu.Unlock()
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "schedule", expr, "next", s.Next(name))
	return nil
}

// RunNow executes a named job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string, job Job) {
	s.run(name, job)
}

// Next returns the next activation time of a job, or the zero time if it is unknown.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	slog.Info("Scheduler.run: job started", "job", name)
	if err := job(s.ctx); err != nil {
		slog.Error("Scheduler.run: job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Info("Scheduler.run: job finished", "job", name, "duration", time.Since(start))
}

// Stop stops the cron scheduler, cancels running jobs and waits for them to return or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slogPrintf routes cron's own log lines through slog.
type slogPrintf struct{}

func (slogPrintf) Printf(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf("cron: "+format, args...))
}
