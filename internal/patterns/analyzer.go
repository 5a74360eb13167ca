// Package patterns computes per-dimension statistical summaries of a child's recent health
// records over a trailing window.
package patterns

import (
	"context"
	"log/slog"
	"time"

	"github.com/suricare/suricare/internal/models"
)

// Default analysis windows.
const (
	DefaultWindow       = 7 * 24 * time.Hour
	DefaultGrowthWindow = 90 * 24 * time.Hour
)

const analysisFailedMessage = "analysis failed"

// EventSource reads a child's events for one dimension. Implementations return events in
// ascending time order with UTC timestamps, and an empty slice when nothing matches.
type EventSource interface {
	QueryEvents(ctx context.Context, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error)
}

// Analyzer computes summaries from an EventSource. It holds no mutable state and is safe for
// concurrent use.
type Analyzer struct {
	src          EventSource
	window       time.Duration
	growthWindow time.Duration
	loc          *time.Location
	now          func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWindow sets the trailing window used for sleep, nutrition and symptoms.
func WithWindow(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithGrowthWindow sets the trailing window used for growth.
func WithGrowthWindow(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.growthWindow = d
		}
	}
}

// WithLocation sets the location used to bucket events into calendar days.
func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an Analyzer reading from src.
func NewAnalyzer(src EventSource, opts ...Option) *Analyzer {
	a := &Analyzer{
		src:          src,
		window:       DefaultWindow,
		growthWindow: DefaultGrowthWindow,
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WindowFor returns the trailing window ending now for dim.
func (a *Analyzer) WindowFor(dim models.Dimension) Window {
	d := a.window
	if dim == models.DimensionGrowth {
		d = a.growthWindow
	}
	return TrailingWindow(a.now(), d)
}

// WindowDays returns the configured window length for dim in days.
func (a *Analyzer) WindowDays(dim models.Dimension) int {
	return a.WindowFor(dim).Days()
}

// Analyze summarises dim over the default trailing window.
func (a *Analyzer) Analyze(ctx context.Context, childID int64, dim models.Dimension) Summary {
	return a.AnalyzeWindow(ctx, childID, dim, a.WindowFor(dim))
}

// AnalyzeWindow summarises dim over win. Store failures are reported as a Failed summary and
// never returned as errors.
func (a *Analyzer) AnalyzeWindow(ctx context.Context, childID int64, dim models.Dimension, win Window) Summary {
	win = Window{Start: win.Start.UTC(), End: win.End.UTC()}
	if !models.IsValidDimension(dim) {
		slog.Warn("Analyzer.AnalyzeWindow: invalid dimension", "child_id", childID, "dimension", dim)
		return Failed{Meta: meta(dim, StatusError, win), Err: models.ErrInvalidDimension, Message: analysisFailedMessage}
	}

	events, err := a.src.QueryEvents(ctx, childID, dim, win.Start, win.End)
	if err != nil {
		slog.Error("Analyzer.AnalyzeWindow: query failed", "child_id", childID, "dimension", dim, "error", err)
		return Failed{Meta: meta(dim, StatusError, win), Err: err, Message: analysisFailedMessage}
	}

	s := AnalyzeEvents(dim, events, win, a.loc)
	slog.Debug("Analyzer.AnalyzeWindow: analyzed", "child_id", childID, "dimension", dim, "events", len(events), "status", s.Status())
	return s
}

// AnalyzeAll summarises every dimension using the default windows.
func (a *Analyzer) AnalyzeAll(ctx context.Context, childID int64) Report {
	return a.AnalyzeAllDays(ctx, childID, 0)
}

// AnalyzeAllDays summarises every dimension. A positive days overrides the sleep, nutrition
// and symptom window; growth always uses its own window.
func (a *Analyzer) AnalyzeAllDays(ctx context.Context, childID int64, days int) Report {
	r := Report{ChildID: childID}
	for _, dim := range models.Dimensions {
		win := a.WindowFor(dim)
		if days > 0 && dim != models.DimensionGrowth {
			win = TrailingWindow(a.now(), time.Duration(days)*24*time.Hour)
		}
		r.set(a.AnalyzeWindow(ctx, childID, dim, win))
	}
	return r
}
