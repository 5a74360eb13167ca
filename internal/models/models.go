// Package models defines the core data structures for SuriCare.
//
// It includes the child profile, the tracked health records (sleep, meals, symptoms,
// growth, stool), chat sessions and health alerts, which are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Dimension identifies one axis of tracked child health data.
type Dimension string

const (
	// DimensionSleep covers sleep intervals.
	DimensionSleep Dimension = "sleep"
	// DimensionNutrition covers meal consumption.
	DimensionNutrition Dimension = "nutrition"
	// DimensionSymptoms covers reported symptoms.
	DimensionSymptoms Dimension = "symptoms"
	// DimensionGrowth covers weight, height and head circumference measurements.
	DimensionGrowth Dimension = "growth"
)

// Dimensions lists every analyzable dimension in presentation order.
var Dimensions = []Dimension{DimensionSleep, DimensionNutrition, DimensionSymptoms, DimensionGrowth}

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for a child's name
	MaxNameLength = 100
	// MaxNoteLength defines the maximum allowed length for free-text notes
	MaxNoteLength = 2000
	// MaxSymptomLength defines the maximum allowed length for a symptom label
	MaxSymptomLength = 100
	// MaxChatMessageLength defines the maximum allowed length for a chat question
	MaxChatMessageLength = 4096
	// MaxChatTitleLength defines the maximum allowed length for a chat title
	MaxChatTitleLength = 200
)

// Error variables for better error handling and testability
var (
	ErrInvalidDimension     = errors.New("invalid dimension")
	ErrEmptyName            = errors.New("name is required")
	ErrNameTooLong          = errors.New("name exceeds maximum length")
	ErrMissingBirthDate     = errors.New("birth_date is required")
	ErrBirthDateInFuture    = errors.New("birth_date cannot be in the future")
	ErrMissingCarer         = errors.New("carer_id is required")
	ErrMissingChild         = errors.New("child_id is required")
	ErrMissingCheckIn       = errors.New("check_in is required")
	ErrNoteTooLong          = errors.New("note exceeds maximum length")
	ErrMissingSleepInterval = errors.New("start_time and end_time are required")
	ErrConsumptionRange     = errors.New("consumption_level must be between 0 and 100")
	ErrEmptySymptom         = errors.New("symptom is required")
	ErrSymptomTooLong       = errors.New("symptom exceeds maximum length")
	ErrNoMeasurement        = errors.New("at least one of weight, height or head_circumference is required")
	ErrNegativeMeasurement  = errors.New("measurements cannot be negative")
	ErrEmptyMessage         = errors.New("message is required")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrTitleTooLong         = errors.New("title exceeds maximum length")
	ErrInvalidSender        = errors.New("sender must be 'user' or 'assistant'")
	ErrInvalidAlertSeverity = errors.New("invalid alert severity")
)

// ParseDimension converts a user-supplied string into a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidDimension(d) {
		return "", ErrInvalidDimension
	}
	return d, nil
}

// IsValidDimension checks if the given dimension is supported.
func IsValidDimension(d Dimension) bool {
	switch d {
	case DimensionSleep, DimensionNutrition, DimensionSymptoms, DimensionGrowth:
		return true
	default:
		return false
	}
}

// Child is a tracked child owned by one primary caregiver.
type Child struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BirthDate time.Time `json:"birth_date"`
	Gender    string    `json:"gender"`
	CarerID   int64     `json:"carer_id"`
}

// Validate performs validation on a Child before it is stored.
func (c *Child) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if c.BirthDate.IsZero() {
		return ErrMissingBirthDate
	}
	if c.BirthDate.After(time.Now().Add(24 * time.Hour)) {
		return ErrBirthDateInFuture
	}
	if c.CarerID <= 0 {
		return ErrMissingCarer
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response carrying the stored entity.
func Recorded(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithResult(result).
		Build()
}
