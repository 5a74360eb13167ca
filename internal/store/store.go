// Package store provides storage backends for SuriCare.
//
// It defines the Store interface and implements it in memory, on SQLite and on PostgreSQL.
// All timestamps are stored and returned in UTC.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suricare/suricare/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRecordKind is returned for an unknown record kind.
var ErrInvalidRecordKind = errors.New("invalid record kind")

// RecordKind names one of the tracked record tables.
type RecordKind string

const (
	RecordSleep   RecordKind = "sleep"
	RecordMeal    RecordKind = "meal"
	RecordSymptom RecordKind = "symptom"
	RecordGrowth  RecordKind = "growth"
	RecordPoop    RecordKind = "poop"
)

// RecordKinds lists every record kind.
var RecordKinds = []RecordKind{RecordSleep, RecordMeal, RecordSymptom, RecordGrowth, RecordPoop}

// ParseRecordKind converts a path segment into a RecordKind.
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RecordKinds {
		if k == known {
			return k, nil
		}
	}
	return "", ErrInvalidRecordKind
}

// Range bounds a record listing. A zero From or To leaves that side open.
type Range struct {
	From time.Time
	To   time.Time
}

var (
	minTime = time.Unix(0, 0).UTC()
	maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// bounds returns closed-open UTC bounds for the range.
func (r Range) bounds() (time.Time, time.Time) {
	from, to := minTime, maxTime
	if !r.From.IsZero() {
		from = r.From.UTC()
	}
	if !r.To.IsZero() {
		to = r.To.UTC()
	}
	return from, to
}

// Store defines the interface for child, record, chat and alert persistence.
type Store interface {
	CreateChild(ctx context.Context, c *models.Child) error
	GetChild(ctx context.Context, id int64) (*models.Child, error)
	ListChildren(ctx context.Context, carerID int64) ([]models.Child, error)
	ListAllChildren(ctx context.Context) ([]models.Child, error)
	UpdateChild(ctx context.Context, c *models.Child) error
	DeleteChild(ctx context.Context, id int64) error

	AddSleep(ctx context.Context, r *models.SleepRecord) error
	ListSleep(ctx context.Context, childID int64, rng Range) ([]models.SleepRecord, error)
	AddMeal(ctx context.Context, r *models.MealRecord) error
	ListMeals(ctx context.Context, childID int64, rng Range) ([]models.MealRecord, error)
	AddSymptom(ctx context.Context, r *models.SymptomRecord) error
	ListSymptoms(ctx context.Context, childID int64, rng Range) ([]models.SymptomRecord, error)
	AddGrowth(ctx context.Context, r *models.GrowthRecord) error
	ListGrowth(ctx context.Context, childID int64, rng Range) ([]models.GrowthRecord, error)
	AddPoop(ctx context.Context, r *models.PoopRecord) error
	ListPoop(ctx context.Context, childID int64, rng Range) ([]models.PoopRecord, error)
	DeleteRecord(ctx context.Context, kind RecordKind, id int64) error

	// QueryEvents returns the analyzable events of one dimension with check-in in
	// [from, to), in ascending time order. No data is an empty slice, not an error.
	QueryEvents(ctx context.Context, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error)

	CreateChat(ctx context.Context, c *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListChats(ctx context.Context, ownerID int64) ([]models.Chat, error)
	RenameChat(ctx context.Context, id, title string) error
	DeleteChat(ctx context.Context, id string) error
	AddMessage(ctx context.Context, m *models.ChatMessage) error
	ListMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error)

	// UpsertAlert inserts an alert or updates the one sharing its child, type and
	// analysis date. The stored ID is written back to a.
	UpsertAlert(ctx context.Context, a *models.HealthAlert) error
	ListAlerts(ctx context.Context, childID int64, unreadOnly bool) ([]models.HealthAlert, error)
	CountUnreadAlerts(ctx context.Context, childID int64) (int, error)
	// SetAlertRead marks an alert read (stamping read_at) or unread (clearing it).
	SetAlertRead(ctx context.Context, id string, read bool) error
	DeleteAlert(ctx context.Context, id string) error

	Close() error
}

// eventsFor adapts typed record lists into HealthEvents.
func eventsFor[T models.HealthEvent](records []T) []models.HealthEvent {
	events := make([]models.HealthEvent, len(records))
	for i, r := range records {
		events[i] = r
	}
	return events
}

// queryEvents implements QueryEvents on top of the typed listings of s.
func queryEvents(ctx context.Context, s Store, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error) {
	rng := Range{From: from, To: to}
	switch dim {
	case models.DimensionSleep:
		rs, err := s.ListSleep(ctx, childID, rng)
		return eventsFor(rs), err
	case models.DimensionNutrition:
		rs, err := s.ListMeals(ctx, childID, rng)
		return eventsFor(rs), err
	case models.DimensionSymptoms:
		rs, err := s.ListSymptoms(ctx, childID, rng)
		return eventsFor(rs), err
	case models.DimensionGrowth:
		rs, err := s.ListGrowth(ctx, childID, rng)
		return eventsFor(rs), err
	}
	return nil, models.ErrInvalidDimension
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
