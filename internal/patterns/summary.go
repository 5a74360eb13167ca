package patterns

import (
	"time"

	"github.com/suricare/suricare/internal/models"
)

// Status tags the kind of Summary produced for a dimension.
type Status string

const (
	StatusNoData           Status = "no_data"
	StatusIncompleteData   Status = "incomplete_data"
	StatusInsufficientData Status = "insufficient_data"
	StatusAvailable        Status = "available"
	StatusHasSymptoms      Status = "has_symptoms"
	StatusNoSymptoms       Status = "no_symptoms"
	StatusError            Status = "error"
)

// Consistency labels the dispersion of a numeric series against a per-dimension threshold.
type Consistency string

const (
	Consistent   Consistency = "consistent"
	Inconsistent Consistency = "inconsistent"
)

// SleepQuality grades a single sleep interval by its length.
type SleepQuality string

const (
	SleepQualityGood SleepQuality = "good" // 8–12h
	SleepQualityFair SleepQuality = "fair" // 6–8h or 12–14h
	SleepQualityPoor SleepQuality = "poor"
)

// Window is the half-open time range [Start, End) a summary was computed over.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrailingWindow returns the window of length d ending at end, in UTC.
func TrailingWindow(end time.Time, d time.Duration) Window {
	end = end.UTC()
	return Window{Start: end.Add(-d), End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the window length in whole days, rounded up.
func (w Window) Days() int {
	d := w.End.Sub(w.Start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Summary is the result of analyzing one dimension over one window. The concrete type
// determines which fields exist; Status mirrors it for serialisation.
type Summary interface {
	Dimension() models.Dimension
	Status() Status
	Period() Window
	isSummary()
}

// Meta is the header shared by every summary.
type Meta struct {
	Dim    models.Dimension `json:"dimension"`
	State  Status           `json:"status"`
	Window Window           `json:"window"`
}

func (m Meta) Dimension() models.Dimension { return m.Dim }
func (m Meta) Status() Status              { return m.State }
func (m Meta) Period() Window              { return m.Window }
func (Meta) isSummary()                    {}

// NoData means no events exist in the window.
type NoData struct {
	Meta
}

// IncompleteData means events exist but none carry a usable value.
type IncompleteData struct {
	Meta
	Records int `json:"records"`
}

// InsufficientData means fewer events exist than the analysis needs.
type InsufficientData struct {
	Meta
	Records  int `json:"records"`
	Required int `json:"required"`
}

// NoSymptoms means no symptom was reported in the window.
type NoSymptoms struct {
	Meta
}

// Failed means the event source could not be read. The error is kept for logging only.
type Failed struct {
	Meta
	Err     error  `json:"-"`
	Message string `json:"message"`
}

// SleepPattern summarises valid sleep intervals.
type SleepPattern struct {
	Meta
	AverageHours float64              `json:"average_hours"`
	StdDevHours  float64              `json:"stddev_hours"`
	Consistency  Consistency          `json:"consistency"`
	Trend        Trend                `json:"trend"`
	SampleCount  int                  `json:"sample_count"`
	RecordCount  int                  `json:"record_count"`
	DistinctDays int                  `json:"distinct_days"`
	Quality      map[SleepQuality]int `json:"quality"`
}

// NutritionPattern summarises meal consumption percentages.
type NutritionPattern struct {
	Meta
	AverageConsumption float64     `json:"average_consumption"`
	StdDev             float64     `json:"stddev"`
	Consistency        Consistency `json:"consistency"`
	Trend              Trend       `json:"trend"`
	SampleCount        int         `json:"sample_count"`
	MealCount          int         `json:"meal_count"`
	DistinctDays       int         `json:"distinct_days"`
	MealsPerDay        float64     `json:"meals_per_day"`
}

// SymptomPattern summarises reported symptoms.
type SymptomPattern struct {
	Meta
	Occurrences       int            `json:"occurrences"`
	DistinctDays      int            `json:"distinct_days"`
	Frequency         map[string]int `json:"frequency"`
	MostFrequent      string         `json:"most_frequent"`
	MostFrequentCount int            `json:"most_frequent_count"`
	AveragePerDay     float64        `json:"average_per_day"`
	Trend             Trend          `json:"trend"`
	Recent            []string       `json:"recent"` // newest first
}

// MeasurementTrend describes one growth measurement across the window.
type MeasurementTrend struct {
	First   float64 `json:"first"`
	Last    float64 `json:"last"`
	Delta   float64 `json:"delta"`
	Trend   Trend   `json:"trend"`
	Samples int     `json:"samples"`
}

// GrowthPattern summarises growth measurements. Weight and Height are nil when fewer than
// two values of that measurement exist.
type GrowthPattern struct {
	Meta
	RecordCount             int               `json:"record_count"`
	Weight                  *MeasurementTrend `json:"weight,omitempty"`
	Height                  *MeasurementTrend `json:"height,omitempty"`
	LatestWeight            *float64          `json:"latest_weight,omitempty"`
	LatestHeight            *float64          `json:"latest_height,omitempty"`
	LatestHeadCircumference *float64          `json:"latest_head_circumference,omitempty"`
	LatestAt                time.Time         `json:"latest_at"`
}

// IsUsable reports whether a summary carries data worth presenting.
func IsUsable(s Summary) bool {
	if s == nil {
		return false
	}
	switch s.Status() {
	case StatusAvailable, StatusHasSymptoms:
		return true
	default:
		return false
	}
}

// Report bundles the summaries of every dimension for one child.
type Report struct {
	ChildID   int64   `json:"child_id"`
	Sleep     Summary `json:"sleep"`
	Nutrition Summary `json:"nutrition"`
	Symptoms  Summary `json:"symptoms"`
	Growth    Summary `json:"growth"`
}

// Get returns the summary for one dimension.
func (r Report) Get(dim models.Dimension) Summary {
	switch dim {
	case models.DimensionSleep:
		return r.Sleep
	case models.DimensionNutrition:
		return r.Nutrition
	case models.DimensionSymptoms:
		return r.Symptoms
	case models.DimensionGrowth:
		return r.Growth
	}
	return nil
}

func (r *Report) set(s Summary) {
	switch s.Dimension() {
	case models.DimensionSleep:
		r.Sleep = s
	case models.DimensionNutrition:
		r.Nutrition = s
	case models.DimensionSymptoms:
		r.Symptoms = s
	case models.DimensionGrowth:
		r.Growth = s
	}
}
