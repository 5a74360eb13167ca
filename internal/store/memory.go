package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suricare/suricare/internal/models"
)

// InMemoryStore is a Store kept entirely in process memory. It is used for tests and
// for running without a database.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	children map[int64]models.Child
	sleep    []models.SleepRecord
	meals    []models.MealRecord
	symptoms []models.SymptomRecord
	growth   []models.GrowthRecord
	poop     []models.PoopRecord
	chats    map[string]models.Chat
	messages []models.ChatMessage
	alerts   map[string]*storedAlert
}

type storedAlert struct {
	models.HealthAlert
	deleted bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		children: make(map[int64]models.Child),
		chats:    make(map[string]models.Chat),
		alerts:   make(map[string]*storedAlert),
	}
}

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) CreateChild(_ context.Context, c *models.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.Name = strings.TrimSpace(c.Name)
	c.BirthDate = c.BirthDate.UTC()
	s.children[c.ID] = *c
	return nil
}

func (s *InMemoryStore) GetChild(_ context.Context, id int64) (*models.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.children[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) ListChildren(_ context.Context, carerID int64) ([]models.Child, error) {
	return s.filterChildren(func(c models.Child) bool { return c.CarerID == carerID }), nil
}

func (s *InMemoryStore) ListAllChildren(_ context.Context) ([]models.Child, error) {
	return s.filterChildren(func(models.Child) bool { return true }), nil
}

func (s *InMemoryStore) filterChildren(keep func(models.Child) bool) []models.Child {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Child{}
	for _, c := range s.children {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *InMemoryStore) UpdateChild(_ context.Context, c *models.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.children[c.ID]; !ok {
		return ErrNotFound
	}
	c.BirthDate = c.BirthDate.UTC()
	s.children[c.ID] = *c
	return nil
}

func (s *InMemoryStore) DeleteChild(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.children[id]; !ok {
		return ErrNotFound
	}
	delete(s.children, id)
	s.sleep = dropChild(s.sleep, id, func(r models.SleepRecord) int64 { return r.ChildID })
	s.meals = dropChild(s.meals, id, func(r models.MealRecord) int64 { return r.ChildID })
	s.symptoms = dropChild(s.symptoms, id, func(r models.SymptomRecord) int64 { return r.ChildID })
	s.growth = dropChild(s.growth, id, func(r models.GrowthRecord) int64 { return r.ChildID })
	s.poop = dropChild(s.poop, id, func(r models.PoopRecord) int64 { return r.ChildID })
	for chatID, c := range s.chats {
		if c.ChildID != nil && *c.ChildID == id {
			s.deleteChatLocked(chatID)
		}
	}
	for alertID, a := range s.alerts {
		if a.ChildID == id {
			delete(s.alerts, alertID)
		}
	}
	return nil
}

func dropChild[T any](records []T, childID int64, child func(T) int64) []T {
	kept := records[:0]
	for _, r := range records {
		if child(r) != childID {
			kept = append(kept, r)
		}
	}
	return kept
}

// listRange returns copies of records for childID with check-in in rng, ordered by time.
func listRange[T models.HealthEvent](records []T, childID int64, rng Range, child func(T) int64) []T {
	from, to := rng.bounds()
	out := []T{}
	for _, r := range records {
		t := r.OccurredAt()
		if child(r) == childID && !t.Before(from) && t.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt().Before(out[j].OccurredAt()) })
	return out
}

func (s *InMemoryStore) AddSleep(_ context.Context, r *models.SleepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Normalize()
	r.ID = s.id()
	s.sleep = append(s.sleep, *r)
	return nil
}

func (s *InMemoryStore) ListSleep(_ context.Context, childID int64, rng Range) ([]models.SleepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.sleep, childID, rng, func(r models.SleepRecord) int64 { return r.ChildID }), nil
}

func (s *InMemoryStore) AddMeal(_ context.Context, r *models.MealRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Normalize()
	r.ID = s.id()
	s.meals = append(s.meals, *r)
	return nil
}

func (s *InMemoryStore) ListMeals(_ context.Context, childID int64, rng Range) ([]models.MealRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.meals, childID, rng, func(r models.MealRecord) int64 { return r.ChildID }), nil
}

func (s *InMemoryStore) AddSymptom(_ context.Context, r *models.SymptomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Normalize()
	r.Symptom = strings.TrimSpace(r.Symptom)
	r.ID = s.id()
	s.symptoms = append(s.symptoms, *r)
	return nil
}

func (s *InMemoryStore) ListSymptoms(_ context.Context, childID int64, rng Range) ([]models.SymptomRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.symptoms, childID, rng, func(r models.SymptomRecord) int64 { return r.ChildID }), nil
}

func (s *InMemoryStore) AddGrowth(_ context.Context, r *models.GrowthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Normalize()
	r.ID = s.id()
	s.growth = append(s.growth, *r)
	return nil
}

func (s *InMemoryStore) ListGrowth(_ context.Context, childID int64, rng Range) ([]models.GrowthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRange(s.growth, childID, rng, func(r models.GrowthRecord) int64 { return r.ChildID }), nil
}

func (s *InMemoryStore) AddPoop(_ context.Context, r *models.PoopRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Normalize()
	r.ID = s.id()
	s.poop = append(s.poop, *r)
	return nil
}

func (s *InMemoryStore) ListPoop(_ context.Context, childID int64, rng Range) ([]models.PoopRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to := rng.bounds()
	out := []models.PoopRecord{}
	for _, r := range s.poop {
		if r.ChildID == childID && !r.CheckIn.Before(from) && r.CheckIn.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

func removeByID[T any](records []T, id int64, idOf func(T) int64) ([]T, bool) {
	for i, r := range records {
		if idOf(r) == id {
			return append(records[:i], records[i+1:]...), true
		}
	}
	return records, false
}

func (s *InMemoryStore) DeleteRecord(_ context.Context, kind RecordKind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found bool
	switch kind {
	case RecordSleep:
		s.sleep, found = removeByID(s.sleep, id, func(r models.SleepRecord) int64 { return r.ID })
	case RecordMeal:
		s.meals, found = removeByID(s.meals, id, func(r models.MealRecord) int64 { return r.ID })
	case RecordSymptom:
		s.symptoms, found = removeByID(s.symptoms, id, func(r models.SymptomRecord) int64 { return r.ID })
	case RecordGrowth:
		s.growth, found = removeByID(s.growth, id, func(r models.GrowthRecord) int64 { return r.ID })
	case RecordPoop:
		s.poop, found = removeByID(s.poop, id, func(r models.PoopRecord) int64 { return r.ID })
	default:
		return ErrInvalidRecordKind
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (s *InMemoryStore) QueryEvents(ctx context.Context, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error) {
	return queryEvents(ctx, s, childID, dim, from, to)
}

func (s *InMemoryStore) CreateChat(_ context.Context, c *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.chats[c.ID] = *c
	return nil
}

func (s *InMemoryStore) GetChat(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) ListChats(_ context.Context, ownerID int64) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Chat{}
	for _, c := range s.chats {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) RenameChat(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
	s.chats[id] = c
	return nil
}

func (s *InMemoryStore) DeleteChat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		return ErrNotFound
	}
	s.deleteChatLocked(id)
	return nil
}

func (s *InMemoryStore) deleteChatLocked(id string) {
	delete(s.chats, id)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ChatID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

func (s *InMemoryStore) AddMessage(_ context.Context, m *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[m.ChatID]
	if !ok {
		return ErrNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	c.UpdatedAt = m.CreatedAt
	s.chats[c.ID] = c
	s.messages = append(s.messages, *m)
	return nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, chatID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.ChatMessage{}
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpsertAlert(_ context.Context, a *models.HealthAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.AnalysisDate = truncateDay(a.AnalysisDate)
	a.Suggestions = nonNilSuggestions(a.Suggestions)
	for _, existing := range s.alerts {
		if existing.ChildID == a.ChildID && existing.AlertType == a.AlertType && existing.AnalysisDate.Equal(a.AnalysisDate) {
			existing.Title = a.Title
			existing.Description = a.Description
			existing.Severity = a.Severity
			existing.Suggestions = a.Suggestions
			existing.DataPeriodStart = a.DataPeriodStart.UTC()
			existing.DataPeriodEnd = a.DataPeriodEnd.UTC()
			existing.deleted = false
			a.ID = existing.ID
			return nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.IsRead, a.ReadAt = false, nil
	s.alerts[a.ID] = &storedAlert{HealthAlert: *a}
	return nil
}

func (s *InMemoryStore) ListAlerts(_ context.Context, childID int64, unreadOnly bool) ([]models.HealthAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.HealthAlert{}
	for _, a := range s.alerts {
		if a.ChildID != childID || a.deleted || (unreadOnly && a.IsRead) {
			continue
		}
		out = append(out, a.HealthAlert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnalysisDate.Equal(out[j].AnalysisDate) {
			return out[i].AnalysisDate.After(out[j].AnalysisDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CountUnreadAlerts(ctx context.Context, childID int64) (int, error) {
	alerts, err := s.ListAlerts(ctx, childID, true)
	return len(alerts), err
}

func (s *InMemoryStore) SetAlertRead(_ context.Context, id string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.deleted {
		return ErrNotFound
	}
	a.IsRead, a.ReadAt = read, nil
	if read {
		now := time.Now().UTC()
		a.ReadAt = &now
	}
	return nil
}

func (s *InMemoryStore) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.deleted {
		return ErrNotFound
	}
	a.deleted = true
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
