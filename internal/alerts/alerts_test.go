package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/store"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func testWindow() patterns.Window {
	return patterns.TrailingWindow(testNow, 7*24*time.Hour)
}

func meta(dim models.Dimension, st patterns.Status) patterns.Meta {
	return patterns.Meta{Dim: dim, State: st, Window: testWindow()}
}

func TestEvaluate_NothingWhenHealthy(t *testing.T) {
	r := patterns.Report{
		ChildID:   1,
		Sleep:     patterns.SleepPattern{Meta: meta(models.DimensionSleep, patterns.StatusAvailable), AverageHours: 10, Consistency: patterns.Consistent, Trend: patterns.TrendStable},
		Nutrition: patterns.NutritionPattern{Meta: meta(models.DimensionNutrition, patterns.StatusAvailable), AverageConsumption: 85, Trend: patterns.TrendStable},
		Symptoms:  patterns.NoSymptoms{Meta: meta(models.DimensionSymptoms, patterns.StatusNoSymptoms)},
		Growth:    patterns.InsufficientData{Meta: meta(models.DimensionGrowth, patterns.StatusInsufficientData), Records: 1, Required: 2},
	}
	assert.Empty(t, Evaluate(r, testNow))
}

func TestEvaluate_Sleep(t *testing.T) {
	tests := []struct {
		name     string
		avg      float64
		cons     patterns.Consistency
		want     bool
		severity models.AlertSeverity
	}{
		{"good", 9.5, patterns.Consistent, false, ""},
		{"short", 7, patterns.Consistent, true, models.AlertSeverityWarning},
		{"very short", 5, patterns.Consistent, true, models.AlertSeverityError},
		{"irregular", 10, patterns.Inconsistent, true, models.AlertSeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := patterns.Report{ChildID: 3, Sleep: patterns.SleepPattern{
				Meta:         meta(models.DimensionSleep, patterns.StatusAvailable),
				AverageHours: tt.avg, Consistency: tt.cons, Trend: patterns.TrendStable, SampleCount: 5,
			}}
			got := Evaluate(r, testNow)
			if !tt.want {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			a := got[0]
			assert.Equal(t, TypeSleep, a.AlertType)
			assert.Equal(t, tt.severity, a.Severity)
			assert.Equal(t, int64(3), a.ChildID)
			assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), a.AnalysisDate)
			assert.Equal(t, testWindow().Start, a.DataPeriodStart)
			assert.Equal(t, testWindow().End, a.DataPeriodEnd)
			assert.NoError(t, a.Validate())
			require.NotEmpty(t, a.Suggestions)
			assert.Equal(t, reviewSuggestion, a.Suggestions[len(a.Suggestions)-1].Title)
		})
	}
}

func TestEvaluate_Nutrition(t *testing.T) {
	base := patterns.NutritionPattern{Meta: meta(models.DimensionNutrition, patterns.StatusAvailable), Trend: patterns.TrendStable}

	low := base
	low.AverageConsumption = 60
	got := Evaluate(patterns.Report{ChildID: 1, Nutrition: low}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertSeverityWarning, got[0].Severity)
	assert.Contains(t, got[0].Description, "60.0%")

	veryLow := base
	veryLow.AverageConsumption = 40
	got = Evaluate(patterns.Report{ChildID: 1, Nutrition: veryLow}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertSeverityError, got[0].Severity)

	dropping := base
	dropping.AverageConsumption = 80
	dropping.Trend = patterns.TrendDecreasing
	got = Evaluate(patterns.Report{ChildID: 1, Nutrition: dropping}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "Meal consumption dropping", got[0].Title)
}

func TestEvaluate_Symptoms(t *testing.T) {
	p := patterns.SymptomPattern{
		Meta:        meta(models.DimensionSymptoms, patterns.StatusHasSymptoms),
		Occurrences: 2, DistinctDays: 2, MostFrequent: "cough", MostFrequentCount: 2, Trend: patterns.TrendStable,
	}
	got := Evaluate(patterns.Report{ChildID: 1, Symptoms: p}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertSeverityInfo, got[0].Severity)
	assert.Contains(t, got[0].Description, "cough")

	p.Trend = patterns.TrendIncreasing
	got = Evaluate(patterns.Report{ChildID: 1, Symptoms: p}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertSeverityWarning, got[0].Severity)
}

func TestEvaluate_Growth(t *testing.T) {
	p := patterns.GrowthPattern{
		Meta:   meta(models.DimensionGrowth, patterns.StatusAvailable),
		Weight: &patterns.MeasurementTrend{First: 10.5, Last: 10.1, Delta: -0.4, Trend: patterns.TrendDecreasing, Samples: 3},
	}
	got := Evaluate(patterns.Report{ChildID: 1, Growth: p}, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, TypeGrowth, got[0].AlertType)
	assert.Contains(t, got[0].Description, "10.50 kg to 10.10 kg")

	p.Weight.Trend = patterns.TrendIncreasing
	assert.Empty(t, Evaluate(patterns.Report{ChildID: 1, Growth: p}, testNow))

	p.Weight = nil
	assert.Empty(t, Evaluate(patterns.Report{ChildID: 1, Growth: p}, testNow))
}

func TestEvaluate_DescriptionsStayObservational(t *testing.T) {
	r := patterns.Report{
		ChildID:   1,
		Sleep:     patterns.SleepPattern{Meta: meta(models.DimensionSleep, patterns.StatusAvailable), AverageHours: 5, Consistency: patterns.Inconsistent},
		Nutrition: patterns.NutritionPattern{Meta: meta(models.DimensionNutrition, patterns.StatusAvailable), AverageConsumption: 30},
		Symptoms:  patterns.SymptomPattern{Meta: meta(models.DimensionSymptoms, patterns.StatusHasSymptoms), Occurrences: 6, DistinctDays: 5, MostFrequent: "fever"},
		Growth:    patterns.GrowthPattern{Meta: meta(models.DimensionGrowth, patterns.StatusAvailable), Weight: &patterns.MeasurementTrend{First: 9, Last: 8.8, Trend: patterns.TrendDecreasing, Samples: 2}},
	}
	got := Evaluate(r, testNow)
	require.Len(t, got, 4)
	for _, a := range got {
		for _, word := range []string{"diagnos", "disease", "treat", "prescri"} {
			assert.NotContains(t, a.Title+" "+a.Description, word, a.AlertType)
		}
	}
}

func newGenerator(t *testing.T) (*Generator, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	an := patterns.NewAnalyzer(st, patterns.WithClock(func() time.Time { return testNow }))
	return NewGenerator(an, st, WithClock(func() time.Time { return testNow })), st
}

func addShortSleep(t *testing.T, st *store.InMemoryStore, childID int64) {
	t.Helper()
	ctx := context.Background()
	for d := 1; d <= 4; d++ {
		end := testNow.Add(-time.Duration(d) * 24 * time.Hour)
		require.NoError(t, st.AddSleep(ctx, &models.SleepRecord{
			ChildID: childID, StartTime: end.Add(-7 * time.Hour), EndTime: end, CheckIn: end,
		}))
	}
}

func TestGenerator_RunChildUpsertsOncePerDay(t *testing.T) {
	g, st := newGenerator(t)
	ctx := context.Background()
	child := &models.Child{Name: "Mia", BirthDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), CarerID: 7}
	require.NoError(t, st.CreateChild(ctx, child))
	addShortSleep(t, st, child.ID)

	got, err := g.RunChild(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TypeSleep, got[0].AlertType)
	assert.NotEmpty(t, got[0].ID)

	again, err := g.RunChild(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, got[0].ID, again[0].ID)

	stored, err := st.ListAlerts(ctx, child.ID, false)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestGenerator_RunAll(t *testing.T) {
	g, st := newGenerator(t)
	ctx := context.Background()
	a := &models.Child{Name: "Ana", BirthDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), CarerID: 1}
	b := &models.Child{Name: "Ben", BirthDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), CarerID: 2}
	require.NoError(t, st.CreateChild(ctx, a))
	require.NoError(t, st.CreateChild(ctx, b))
	addShortSleep(t, st, a.ID)

	res, err := g.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunResult{Children: 2, Alerts: 1}, res)

	n, err := st.CountUnreadAlerts(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type failingStore struct {
	children []models.Child
	listErr  error
}

func (f failingStore) ListAllChildren(context.Context) ([]models.Child, error) {
	return f.children, f.listErr
}

func (f failingStore) UpsertAlert(context.Context, *models.HealthAlert) error {
	return errors.New("disk full")
}

func TestGenerator_Failures(t *testing.T) {
	src := store.NewInMemoryStore()
	addShortSleep(t, src, 1)
	an := patterns.NewAnalyzer(src, patterns.WithClock(func() time.Time { return testNow }))

	g := NewGenerator(an, failingStore{children: []models.Child{{ID: 1}, {ID: 2}}})
	res, err := g.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Children)
	assert.Equal(t, 0, res.Alerts)
	assert.Equal(t, 1, res.Failures)

	g = NewGenerator(an, failingStore{listErr: errors.New("offline")})
	_, err = g.RunAll(context.Background())
	assert.Error(t, err)
}
