package models

import (
	"strings"
	"time"
)

// HealthEvent is a timestamped record belonging to one child. Events are read-only once
// they reach the analyzer.
type HealthEvent interface {
	// OccurredAt is the check-in instant of the record, normalised to UTC.
	OccurredAt() time.Time
	// EventDimension is the dimension the record contributes to.
	EventDimension() Dimension
}

// SleepRecord is one sleep interval.
type SleepRecord struct {
	ID        int64     `json:"id"`
	ChildID   int64     `json:"child_id"`
	CheckIn   time.Time `json:"check_in"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Note      string    `json:"note,omitempty"`
}

func (r SleepRecord) OccurredAt() time.Time     { return r.CheckIn.UTC() }
func (r SleepRecord) EventDimension() Dimension { return DimensionSleep }

// DurationHours returns the interval length in hours; it may be zero or negative for
// malformed intervals.
func (r SleepRecord) DurationHours() float64 {
	return r.EndTime.Sub(r.StartTime).Hours()
}

// Validate checks the fields required to store a sleep record. Intervals whose end is not
// after their start are accepted here and discarded during analysis.
func (r *SleepRecord) Validate() error {
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return ErrMissingSleepInterval
	}
	if r.CheckIn.IsZero() {
		r.CheckIn = r.EndTime
	}
	if len(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (r *SleepRecord) Normalize() {
	r.CheckIn = r.CheckIn.UTC()
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
}

// MealRecord is one meal with an optional consumption percentage.
type MealRecord struct {
	ID               int64     `json:"id"`
	ChildID          int64     `json:"child_id"`
	CheckIn          time.Time `json:"check_in"`
	ConsumptionLevel *float64  `json:"consumption_level,omitempty"`
	MealTime         string    `json:"meal_time,omitempty"`     // e.g. breakfast, lunch
	MealCategory     string    `json:"meal_category,omitempty"` // e.g. solids, milk
	Others           string    `json:"others,omitempty"`
	Note             string    `json:"note,omitempty"`
}

func (r MealRecord) OccurredAt() time.Time     { return r.CheckIn.UTC() }
func (r MealRecord) EventDimension() Dimension { return DimensionNutrition }

// Validate checks the fields required to store a meal record.
func (r *MealRecord) Validate() error {
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.CheckIn.IsZero() {
		return ErrMissingCheckIn
	}
	if r.ConsumptionLevel != nil && (*r.ConsumptionLevel < 0 || *r.ConsumptionLevel > 100) {
		return ErrConsumptionRange
	}
	if len(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (r *MealRecord) Normalize() {
	r.CheckIn = r.CheckIn.UTC()
}

// SymptomRecord is one observed symptom.
type SymptomRecord struct {
	ID       int64     `json:"id"`
	ChildID  int64     `json:"child_id"`
	CheckIn  time.Time `json:"check_in"`
	Symptom  string    `json:"symptom"`
	PhotoURL string    `json:"photo_url,omitempty"`
	Note     string    `json:"note,omitempty"`
}

func (r SymptomRecord) OccurredAt() time.Time     { return r.CheckIn.UTC() }
func (r SymptomRecord) EventDimension() Dimension { return DimensionSymptoms }

// Label returns the case-insensitive symptom key.
func (r SymptomRecord) Label() string {
	return strings.ToLower(strings.TrimSpace(r.Symptom))
}

// Validate checks the fields required to store a symptom record.
func (r *SymptomRecord) Validate() error {
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.CheckIn.IsZero() {
		return ErrMissingCheckIn
	}
	if strings.TrimSpace(r.Symptom) == "" {
		return ErrEmptySymptom
	}
	if len(r.Symptom) > MaxSymptomLength {
		return ErrSymptomTooLong
	}
	if len(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (r *SymptomRecord) Normalize() {
	r.CheckIn = r.CheckIn.UTC()
}

// GrowthRecord is one set of body measurements; any measurement may be missing.
type GrowthRecord struct {
	ID                int64     `json:"id"`
	ChildID           int64     `json:"child_id"`
	CheckIn           time.Time `json:"check_in"`
	Weight            *float64  `json:"weight,omitempty"`             // kg
	Height            *float64  `json:"height,omitempty"`             // cm
	HeadCircumference *float64  `json:"head_circumference,omitempty"` // cm
	Note              string    `json:"note,omitempty"`
}

func (r GrowthRecord) OccurredAt() time.Time     { return r.CheckIn.UTC() }
func (r GrowthRecord) EventDimension() Dimension { return DimensionGrowth }

// Validate checks the fields required to store a growth record.
func (r *GrowthRecord) Validate() error {
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.CheckIn.IsZero() {
		return ErrMissingCheckIn
	}
	if r.Weight == nil && r.Height == nil && r.HeadCircumference == nil {
		return ErrNoMeasurement
	}
	for _, v := range []*float64{r.Weight, r.Height, r.HeadCircumference} {
		if v != nil && *v < 0 {
			return ErrNegativeMeasurement
		}
	}
	if len(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (r *GrowthRecord) Normalize() {
	r.CheckIn = r.CheckIn.UTC()
}

// PoopRecord is one stool observation. It is tracked and listed but not analyzed.
type PoopRecord struct {
	ID          int64     `json:"id"`
	ChildID     int64     `json:"child_id"`
	CheckIn     time.Time `json:"check_in"`
	Color       string    `json:"color,omitempty"`
	Consistency string    `json:"consistency,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// Validate checks the fields required to store a stool record.
func (r *PoopRecord) Validate() error {
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.CheckIn.IsZero() {
		return ErrMissingCheckIn
	}
	if len(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Normalize converts every timestamp to UTC.
func (r *PoopRecord) Normalize() {
	r.CheckIn = r.CheckIn.UTC()
}

// Float returns a pointer to v, for optional measurement fields.
func Float(v float64) *float64 {
	return &v
}
