// Package alerts turns weekly pattern summaries into health alerts and stores them.
//
// Alerts describe recorded observations only. They are upserted per child, alert type and
// analysis day, so re-running the analysis on the same day updates instead of duplicating.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
)

// Alert types.
const (
	TypeSleep     = "sleep_pattern"
	TypeNutrition = "nutrition_pattern"
	TypeSymptoms  = "symptom_pattern"
	TypeGrowth    = "growth_pattern"
)

// Thresholds that raise an alert.
const (
	SleepWarningHours     = 8.0
	SleepErrorHours       = 6.0
	NutritionWarningLevel = 70.0
	NutritionErrorLevel   = 50.0
	SymptomWarningDays    = 4
)

const reviewSuggestion = "Discuss these observations with your child's healthcare provider"

// Store is the persistence the generator needs.
type Store interface {
	ListAllChildren(ctx context.Context) ([]models.Child, error)
	UpsertAlert(ctx context.Context, a *models.HealthAlert) error
}

// Generator runs the weekly analysis.
type Generator struct {
	analyzer *patterns.Analyzer
	store    Store
	now      func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used for the analysis date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(analyzer *patterns.Analyzer, store Store, opts ...Option) *Generator {
	g := &Generator{analyzer: analyzer, store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RunResult summarises one run over all children.
type RunResult struct {
	Children int `json:"children"`
	Alerts   int `json:"alerts"`
	Failures int `json:"failures"`
}

// RunAll analyses every child and upserts their alerts. Per-child failures are counted and
// logged; only a failure to list children is returned.
func (g *Generator) RunAll(ctx context.Context) (RunResult, error) {
	children, err := g.store.ListAllChildren(ctx)
	if err != nil {
		slog.Error("Generator.RunAll: failed to list children", "error", err)
		return RunResult{}, fmt.Errorf("list children: %w", err)
	}
	res := RunResult{Children: len(children)}
	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		alerts, err := g.RunChild(ctx, c.ID)
		res.Alerts += len(alerts)
		if err != nil {
			res.Failures++
		}
	}
	slog.Info("Generator.RunAll: weekly analysis finished", "children", res.Children, "alerts", res.Alerts, "failures", res.Failures)
	return res, nil
}

// RunChild analyses one child and upserts the resulting alerts. It returns the alerts that
// were stored.
func (g *Generator) RunChild(ctx context.Context, childID int64) ([]models.HealthAlert, error) {
	report := g.analyzer.AnalyzeAll(ctx, childID)
	candidates := Evaluate(report, g.now())
	stored := make([]models.HealthAlert, 0, len(candidates))
	var errs []error
	for i := range candidates {
		a := candidates[i]
		if err := g.store.UpsertAlert(ctx, &a); err != nil {
			slog.Error("Generator.RunChild: upsert failed", "child_id", childID, "alert_type", a.AlertType, "error", err)
			errs = append(errs, err)
			continue
		}
		stored = append(stored, a)
	}
	slog.Debug("Generator.RunChild: analysed", "child_id", childID, "alerts", len(stored))
	return stored, errors.Join(errs...)
}

// Evaluate derives alerts from a report. It is pure; dimensions without usable data raise
// nothing.
func Evaluate(r patterns.Report, now time.Time) []models.HealthAlert {
	day := now.UTC().Truncate(24 * time.Hour)
	var out []models.HealthAlert
	add := func(s patterns.Summary, a *models.HealthAlert) {
		if a == nil {
			return
		}
		a.ChildID = r.ChildID
		a.AnalysisDate = day
		a.DataPeriodStart = s.Period().Start
		a.DataPeriodEnd = s.Period().End
		a.Suggestions = append(a.Suggestions, models.AlertSuggestion{Title: reviewSuggestion})
		out = append(out, *a)
	}
	if p, ok := r.Sleep.(patterns.SleepPattern); ok {
		add(p, sleepAlert(p))
	}
	if p, ok := r.Nutrition.(patterns.NutritionPattern); ok {
		add(p, nutritionAlert(p))
	}
	if p, ok := r.Symptoms.(patterns.SymptomPattern); ok {
		add(p, symptomAlert(p))
	}
	if p, ok := r.Growth.(patterns.GrowthPattern); ok {
		add(p, growthAlert(p))
	}
	return out
}

func sleepAlert(p patterns.SleepPattern) *models.HealthAlert {
	short := p.AverageHours < SleepWarningHours
	if !short && p.Consistency != patterns.Inconsistent {
		return nil
	}
	a := &models.HealthAlert{AlertType: TypeSleep, Severity: models.AlertSeverityWarning}
	switch {
	case p.AverageHours < SleepErrorHours:
		a.Severity = models.AlertSeverityError
		a.Title = "Much less sleep recorded"
	case short:
		a.Title = "Less sleep recorded"
	default:
		a.Title = "Irregular sleep recorded"
	}
	a.Description = fmt.Sprintf("Recorded sleep averaged %.1f hours across %d records over the last %d days, with %s durations and a %s trend.",
		p.AverageHours, p.SampleCount, p.Window.Days(), p.Consistency, p.Trend)
	a.Suggestions = []models.AlertSuggestion{
		{Title: "Keep a consistent bedtime routine", Detail: "Note bedtimes and wake times so changes are easier to see."},
	}
	return a
}

func nutritionAlert(p patterns.NutritionPattern) *models.HealthAlert {
	low := p.AverageConsumption < NutritionWarningLevel
	if !low && p.Trend != patterns.TrendDecreasing {
		return nil
	}
	a := &models.HealthAlert{AlertType: TypeNutrition, Severity: models.AlertSeverityWarning}
	switch {
	case p.AverageConsumption < NutritionErrorLevel:
		a.Severity = models.AlertSeverityError
		a.Title = "Much less food eaten"
	case low:
		a.Title = "Less food eaten"
	default:
		a.Title = "Meal consumption dropping"
	}
	a.Description = fmt.Sprintf("Meals were on average %.1f%% eaten across %d meals over the last %d days (%.1f meals per day), with a %s trend.",
		p.AverageConsumption, p.SampleCount, p.Window.Days(), p.MealsPerDay, p.Trend)
	a.Suggestions = []models.AlertSuggestion{
		{Title: "Log how much of each meal is eaten", Detail: "Recording every meal gives a clearer picture than single meals."},
	}
	return a
}

func symptomAlert(p patterns.SymptomPattern) *models.HealthAlert {
	a := &models.HealthAlert{AlertType: TypeSymptoms, Severity: models.AlertSeverityInfo, Title: "Symptoms recorded"}
	if p.Trend == patterns.TrendIncreasing || p.DistinctDays >= SymptomWarningDays {
		a.Severity = models.AlertSeverityWarning
		a.Title = "Symptoms recorded more often"
	}
	a.Description = fmt.Sprintf("%d symptom entries were recorded on %d days over the last %d days. The most frequent was %s (%d times), with a %s trend.",
		p.Occurrences, p.DistinctDays, p.Window.Days(), p.MostFrequent, p.MostFrequentCount, p.Trend)
	a.Suggestions = []models.AlertSuggestion{
		{Title: "Keep noting when symptoms appear", Detail: "Times, photos and what else happened that day are useful to share."},
	}
	return a
}

func growthAlert(p patterns.GrowthPattern) *models.HealthAlert {
	if p.Weight == nil || p.Weight.Trend != patterns.TrendDecreasing {
		return nil
	}
	return &models.HealthAlert{
		AlertType: TypeGrowth,
		Severity:  models.AlertSeverityWarning,
		Title:     "Lower weight recorded",
		Description: fmt.Sprintf("Recorded weight went from %.2f kg to %.2f kg across %d measurements over the last %d days.",
			p.Weight.First, p.Weight.Last, p.Weight.Samples, p.Window.Days()),
		Suggestions: []models.AlertSuggestion{
			{Title: "Measure under the same conditions", Detail: "Weighing at a similar time of day makes values easier to compare."},
		},
	}
}
