package models

import "time"

// AlertSeverity grades a health alert for display.
type AlertSeverity string

const (
	AlertSeverityError   AlertSeverity = "error"
	AlertSeverityWarning AlertSeverity = "warning"
	AlertSeverityInfo    AlertSeverity = "info"
)

// IsValidAlertSeverity checks if the given severity is supported.
func IsValidAlertSeverity(s AlertSeverity) bool {
	switch s {
	case AlertSeverityError, AlertSeverityWarning, AlertSeverityInfo:
		return true
	default:
		return false
	}
}

// AlertSuggestion is one follow-up suggestion attached to an alert.
type AlertSuggestion struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// HealthAlert is an observation produced by the weekly pattern analysis. Alerts are unique
// per (child, alert type, analysis date).
type HealthAlert struct {
	ID              string            `json:"id"`
	ChildID         int64             `json:"child_id"`
	AlertType       string            `json:"alert_type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Severity        AlertSeverity     `json:"severity"`
	Suggestions     []AlertSuggestion `json:"suggestions"`
	AnalysisDate    time.Time         `json:"analysis_date"` // calendar day, midnight UTC
	DataPeriodStart time.Time         `json:"data_period_start"`
	DataPeriodEnd   time.Time         `json:"data_period_end"`
	CreatedAt       time.Time         `json:"created_at"`
	IsRead          bool              `json:"is_read"`
	ReadAt          *time.Time        `json:"read_at,omitempty"`
}

// Validate checks an alert before it is upserted.
func (a *HealthAlert) Validate() error {
	if a.ChildID <= 0 {
		return ErrMissingChild
	}
	if !IsValidAlertSeverity(a.Severity) {
		return ErrInvalidAlertSeverity
	}
	return nil
}
