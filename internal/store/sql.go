package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suricare/suricare/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends. Queries are
// written with ? placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	name    string
}

func newSQLStore(db *sql.DB, d dialect, name string) *sqlStore {
	return &sqlStore{db: db, dialect: d, name: name}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// insertID runs an INSERT ... RETURNING id statement.
func (s *sqlStore) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// expectAffected maps a zero-row update or delete to ErrNotFound.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name+".Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.name+".Close: failed to close database", "error", err)
	}
	return err
}

// Children

func (s *sqlStore) CreateChild(ctx context.Context, c *models.Child) error {
	c.BirthDate = c.BirthDate.UTC()
	id, err := s.insertID(ctx,
		`INSERT INTO children (name, birth_date, gender, carer_id, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		strings.TrimSpace(c.Name), c.BirthDate, c.Gender, c.CarerID, time.Now().UTC())
	if err != nil {
		slog.Error(s.name+".CreateChild: insert failed", "error", err, "carer_id", c.CarerID)
		return fmt.Errorf("failed to insert child: %w", err)
	}
	c.ID = id
	slog.Debug(s.name+".CreateChild: created", "child_id", id)
	return nil
}

const childColumns = `id, name, birth_date, gender, carer_id`

func scanChild(sc interface{ Scan(...any) error }) (models.Child, error) {
	var c models.Child
	if err := sc.Scan(&c.ID, &c.Name, &c.BirthDate, &c.Gender, &c.CarerID); err != nil {
		return c, err
	}
	c.BirthDate = c.BirthDate.UTC()
	return c, nil
}

func (s *sqlStore) GetChild(ctx context.Context, id int64) (*models.Child, error) {
	c, err := scanChild(s.queryRow(ctx, `SELECT `+childColumns+` FROM children WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+".GetChild: query failed", "error", err, "child_id", id)
		return nil, fmt.Errorf("failed to get child %d: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) listChildren(ctx context.Context, query string, args ...any) ([]models.Child, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		slog.Error(s.name+".ListChildren: query failed", "error", err)
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()
	children := []models.Child{}
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child row: %w", err)
		}
		children = append(children, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate child rows: %w", err)
	}
	return children, nil
}

func (s *sqlStore) ListChildren(ctx context.Context, carerID int64) ([]models.Child, error) {
	return s.listChildren(ctx, `SELECT `+childColumns+` FROM children WHERE carer_id = ? ORDER BY id`, carerID)
}

func (s *sqlStore) ListAllChildren(ctx context.Context) ([]models.Child, error) {
	return s.listChildren(ctx, `SELECT `+childColumns+` FROM children ORDER BY id`)
}

func (s *sqlStore) UpdateChild(ctx context.Context, c *models.Child) error {
	res, err := s.exec(ctx, `UPDATE children SET name = ?, birth_date = ?, gender = ?, carer_id = ? WHERE id = ?`,
		strings.TrimSpace(c.Name), c.BirthDate.UTC(), c.Gender, c.CarerID, c.ID)
	if err != nil {
		slog.Error(s.name+".UpdateChild: update failed", "error", err, "child_id", c.ID)
		return fmt.Errorf("failed to update child %d: %w", c.ID, err)
	}
	return expectAffected(res)
}

// DeleteChild removes a child together with its records, chats and alerts.
func (s *sqlStore) DeleteChild(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sleep_records", "meal_records", "symptom_records", "growth_records", "poop_records", "health_alerts"} {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM `+table+` WHERE child_id = ?`), id); err != nil {
			slog.Error(s.name+".DeleteChild: cascade failed", "error", err, "child_id", id, "table", table)
			return fmt.Errorf("failed to delete %s for child %d: %w", table, id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM chat_messages WHERE chat_id IN (SELECT id FROM chats WHERE child_id = ?)`), id); err != nil {
		return fmt.Errorf("failed to delete chat messages for child %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM chats WHERE child_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete chats for child %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM children WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete child %d: %w", id, err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit child deletion: %w", err)
	}
	slog.Debug(s.name+".DeleteChild: deleted", "child_id", id)
	return nil
}

// Records

func (s *sqlStore) AddSleep(ctx context.Context, r *models.SleepRecord) error {
	r.Normalize()
	id, err := s.insertID(ctx,
		`INSERT INTO sleep_records (child_id, check_in, start_time, end_time, note) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		r.ChildID, r.CheckIn, r.StartTime, r.EndTime, r.Note)
	if err != nil {
		slog.Error(s.name+".AddSleep: insert failed", "error", err, "child_id", r.ChildID)
		return fmt.Errorf("failed to insert sleep record: %w", err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) ListSleep(ctx context.Context, childID int64, rng Range) ([]models.SleepRecord, error) {
	from, to := rng.bounds()
	rows, err := s.query(ctx,
		`SELECT id, child_id, check_in, start_time, end_time, note FROM sleep_records
		 WHERE child_id = ? AND check_in >= ? AND check_in < ? ORDER BY check_in, id`, childID, from, to)
	if err != nil {
		slog.Error(s.name+".ListSleep: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query sleep records: %w", err)
	}
	defer rows.Close()
	out := []models.SleepRecord{}
	for rows.Next() {
		var r models.SleepRecord
		if err := rows.Scan(&r.ID, &r.ChildID, &r.CheckIn, &r.StartTime, &r.EndTime, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan sleep row: %w", err)
		}
		r.Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddMeal(ctx context.Context, r *models.MealRecord) error {
	r.Normalize()
	id, err := s.insertID(ctx,
		`INSERT INTO meal_records (child_id, check_in, consumption_level, meal_time, meal_category, others, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.ChildID, r.CheckIn, r.ConsumptionLevel, r.MealTime, r.MealCategory, r.Others, r.Note)
	if err != nil {
		slog.Error(s.name+".AddMeal: insert failed", "error", err, "child_id", r.ChildID)
		return fmt.Errorf("failed to insert meal record: %w", err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) ListMeals(ctx context.Context, childID int64, rng Range) ([]models.MealRecord, error) {
	from, to := rng.bounds()
	rows, err := s.query(ctx,
		`SELECT id, child_id, check_in, consumption_level, meal_time, meal_category, others, note FROM meal_records
		 WHERE child_id = ? AND check_in >= ? AND check_in < ? ORDER BY check_in, id`, childID, from, to)
	if err != nil {
		slog.Error(s.name+".ListMeals: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query meal records: %w", err)
	}
	defer rows.Close()
	out := []models.MealRecord{}
	for rows.Next() {
		var r models.MealRecord
		var level sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ChildID, &r.CheckIn, &level, &r.MealTime, &r.MealCategory, &r.Others, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan meal row: %w", err)
		}
		r.ConsumptionLevel = nullFloat(level)
		r.Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddSymptom(ctx context.Context, r *models.SymptomRecord) error {
	r.Normalize()
	id, err := s.insertID(ctx,
		`INSERT INTO symptom_records (child_id, check_in, symptom, photo_url, note) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		r.ChildID, r.CheckIn, strings.TrimSpace(r.Symptom), r.PhotoURL, r.Note)
	if err != nil {
		slog.Error(s.name+".AddSymptom: insert failed", "error", err, "child_id", r.ChildID)
		return fmt.Errorf("failed to insert symptom record: %w", err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) ListSymptoms(ctx context.Context, childID int64, rng Range) ([]models.SymptomRecord, error) {
	from, to := rng.bounds()
	rows, err := s.query(ctx,
		`SELECT id, child_id, check_in, symptom, photo_url, note FROM symptom_records
		 WHERE child_id = ? AND check_in >= ? AND check_in < ? ORDER BY check_in, id`, childID, from, to)
	if err != nil {
		slog.Error(s.name+".ListSymptoms: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query symptom records: %w", err)
	}
	defer rows.Close()
	out := []models.SymptomRecord{}
	for rows.Next() {
		var r models.SymptomRecord
		if err := rows.Scan(&r.ID, &r.ChildID, &r.CheckIn, &r.Symptom, &r.PhotoURL, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan symptom row: %w", err)
		}
		r.Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddGrowth(ctx context.Context, r *models.GrowthRecord) error {
	r.Normalize()
	id, err := s.insertID(ctx,
		`INSERT INTO growth_records (child_id, check_in, weight, height, head_circumference, note)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		r.ChildID, r.CheckIn, r.Weight, r.Height, r.HeadCircumference, r.Note)
	if err != nil {
		slog.Error(s.name+".AddGrowth: insert failed", "error", err, "child_id", r.ChildID)
		return fmt.Errorf("failed to insert growth record: %w", err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) ListGrowth(ctx context.Context, childID int64, rng Range) ([]models.GrowthRecord, error) {
	from, to := rng.bounds()
	rows, err := s.query(ctx,
		`SELECT id, child_id, check_in, weight, height, head_circumference, note FROM growth_records
		 WHERE child_id = ? AND check_in >= ? AND check_in < ? ORDER BY check_in, id`, childID, from, to)
	if err != nil {
		slog.Error(s.name+".ListGrowth: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query growth records: %w", err)
	}
	defer rows.Close()
	out := []models.GrowthRecord{}
	for rows.Next() {
		var r models.GrowthRecord
		var w, h, hc sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ChildID, &r.CheckIn, &w, &h, &hc, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan growth row: %w", err)
		}
		r.Weight, r.Height, r.HeadCircumference = nullFloat(w), nullFloat(h), nullFloat(hc)
		r.Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddPoop(ctx context.Context, r *models.PoopRecord) error {
	r.Normalize()
	id, err := s.insertID(ctx,
		`INSERT INTO poop_records (child_id, check_in, color, consistency, note) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		r.ChildID, r.CheckIn, r.Color, r.Consistency, r.Note)
	if err != nil {
		slog.Error(s.name+".AddPoop: insert failed", "error", err, "child_id", r.ChildID)
		return fmt.Errorf("failed to insert poop record: %w", err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) ListPoop(ctx context.Context, childID int64, rng Range) ([]models.PoopRecord, error) {
	from, to := rng.bounds()
	rows, err := s.query(ctx,
		`SELECT id, child_id, check_in, color, consistency, note FROM poop_records
		 WHERE child_id = ? AND check_in >= ? AND check_in < ? ORDER BY check_in, id`, childID, from, to)
	if err != nil {
		slog.Error(s.name+".ListPoop: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query poop records: %w", err)
	}
	defer rows.Close()
	out := []models.PoopRecord{}
	for rows.Next() {
		var r models.PoopRecord
		if err := rows.Scan(&r.ID, &r.ChildID, &r.CheckIn, &r.Color, &r.Consistency, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan poop row: %w", err)
		}
		r.Normalize()
		out = append(out, r)
	}
	return out, rows.Err()
}

var recordTables = map[RecordKind]string{
	RecordSleep:   "sleep_records",
	RecordMeal:    "meal_records",
	RecordSymptom: "symptom_records",
	RecordGrowth:  "growth_records",
	RecordPoop:    "poop_records",
}

func (s *sqlStore) DeleteRecord(ctx context.Context, kind RecordKind, id int64) error {
	table, ok := recordTables[kind]
	if !ok {
		return ErrInvalidRecordKind
	}
	res, err := s.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		slog.Error(s.name+".DeleteRecord: delete failed", "error", err, "kind", kind, "id", id)
		return fmt.Errorf("failed to delete %s record %d: %w", kind, id, err)
	}
	return expectAffected(res)
}

func (s *sqlStore) QueryEvents(ctx context.Context, childID int64, dim models.Dimension, from, to time.Time) ([]models.HealthEvent, error) {
	return queryEvents(ctx, s, childID, dim, from, to)
}

// Chats

func (s *sqlStore) CreateChat(ctx context.Context, c *models.Chat) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.exec(ctx, `INSERT INTO chats (id, title, owner_id, child_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.OwnerID, c.ChildID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error(s.name+".CreateChat: insert failed", "error", err, "owner_id", c.OwnerID)
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

const chatColumns = `id, title, owner_id, child_id, created_at, updated_at`

func scanChat(sc interface{ Scan(...any) error }) (models.Chat, error) {
	var c models.Chat
	var child sql.NullInt64
	if err := sc.Scan(&c.ID, &c.Title, &c.OwnerID, &child, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	if child.Valid {
		id := child.Int64
		c.ChildID = &id
	}
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, nil
}

func (s *sqlStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	c, err := scanChat(s.queryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+".GetChat: query failed", "error", err, "chat_id", id)
		return nil, fmt.Errorf("failed to get chat %s: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) ListChats(ctx context.Context, ownerID int64) ([]models.Chat, error) {
	rows, err := s.query(ctx, `SELECT `+chatColumns+` FROM chats WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		slog.Error(s.name+".ListChats: query failed", "error", err, "owner_id", ownerID)
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()
	out := []models.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) RenameChat(ctx context.Context, id, title string) error {
	res, err := s.exec(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC(), id)
	if err != nil {
		slog.Error(s.name+".RenameChat: update failed", "error", err, "chat_id", id)
		return fmt.Errorf("failed to rename chat %s: %w", id, err)
	}
	return expectAffected(res)
}

func (s *sqlStore) DeleteChat(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM chat_messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages of chat %s: %w", id, err)
	}
	res, err := s.exec(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		slog.Error(s.name+".DeleteChat: delete failed", "error", err, "chat_id", id)
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	return expectAffected(res)
}

// AddMessage stores a message and bumps the chat's updated_at.
func (s *sqlStore) AddMessage(ctx context.Context, m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	res, err := s.exec(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, m.CreatedAt, m.ChatID)
	if err != nil {
		return fmt.Errorf("failed to touch chat %s: %w", m.ChatID, err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO chat_messages (id, chat_id, message, sender, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Message, m.Sender, m.CreatedAt)
	if err != nil {
		slog.Error(s.name+".AddMessage: insert failed", "error", err, "chat_id", m.ChatID)
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (s *sqlStore) ListMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	rows, err := s.query(ctx, `SELECT id, chat_id, message, sender, created_at FROM chat_messages WHERE chat_id = ? ORDER BY created_at, id`, chatID)
	if err != nil {
		slog.Error(s.name+".ListMessages: query failed", "error", err, "chat_id", chatID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()
	out := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Message, &m.Sender, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Alerts

func (s *sqlStore) UpsertAlert(ctx context.Context, a *models.HealthAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.AnalysisDate = truncateDay(a.AnalysisDate)
	suggestions, err := json.Marshal(nonNilSuggestions(a.Suggestions))
	if err != nil {
		return fmt.Errorf("failed to marshal alert suggestions: %w", err)
	}

	var id string
	err = s.queryRow(ctx,
		`INSERT INTO health_alerts (id, child_id, alert_type, title, description, severity, suggestions,
		     analysis_date, data_period_start, data_period_end, created_at, is_read, is_deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (child_id, alert_type, analysis_date) DO UPDATE SET
		     title = excluded.title,
		     description = excluded.description,
		     severity = excluded.severity,
		     suggestions = excluded.suggestions,
		     data_period_start = excluded.data_period_start,
		     data_period_end = excluded.data_period_end,
		     is_deleted = excluded.is_deleted
		 RETURNING id`,
		a.ID, a.ChildID, a.AlertType, a.Title, a.Description, string(a.Severity), string(suggestions),
		a.AnalysisDate, a.DataPeriodStart.UTC(), a.DataPeriodEnd.UTC(), a.CreatedAt, false, false).Scan(&id)
	if err != nil {
		slog.Error(s.name+".UpsertAlert: upsert failed", "error", err, "child_id", a.ChildID, "alert_type", a.AlertType)
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	a.ID = id
	return nil
}

const alertColumns = `id, child_id, alert_type, title, description, severity, suggestions, analysis_date,
	data_period_start, data_period_end, created_at, is_read, read_at`

func scanAlert(sc interface{ Scan(...any) error }) (models.HealthAlert, error) {
	var a models.HealthAlert
	var severity string
	var suggestions []byte
	var readAt sql.NullTime
	if err := sc.Scan(&a.ID, &a.ChildID, &a.AlertType, &a.Title, &a.Description, &severity, &suggestions,
		&a.AnalysisDate, &a.DataPeriodStart, &a.DataPeriodEnd, &a.CreatedAt, &a.IsRead, &readAt); err != nil {
		return a, err
	}
	a.Severity = models.AlertSeverity(severity)
	if len(suggestions) > 0 {
		if err := json.Unmarshal(suggestions, &a.Suggestions); err != nil {
			return a, fmt.Errorf("failed to decode alert suggestions: %w", err)
		}
	}
	a.Suggestions = nonNilSuggestions(a.Suggestions)
	if readAt.Valid {
		t := readAt.Time.UTC()
		a.ReadAt = &t
	}
	a.AnalysisDate = a.AnalysisDate.UTC()
	a.DataPeriodStart, a.DataPeriodEnd = a.DataPeriodStart.UTC(), a.DataPeriodEnd.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *sqlStore) ListAlerts(ctx context.Context, childID int64, unreadOnly bool) ([]models.HealthAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM health_alerts WHERE child_id = ? AND is_deleted = ?`
	args := []any{childID, false}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY analysis_date DESC, created_at DESC`
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		slog.Error(s.name+".ListAlerts: query failed", "error", err, "child_id", childID)
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	out := []models.HealthAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) CountUnreadAlerts(ctx context.Context, childID int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM health_alerts WHERE child_id = ? AND is_read = ? AND is_deleted = ?`,
		childID, false, false).Scan(&n)
	if err != nil {
		slog.Error(s.name+".CountUnreadAlerts: query failed", "error", err, "child_id", childID)
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return n, nil
}

func (s *sqlStore) SetAlertRead(ctx context.Context, id string, read bool) error {
	var readAt sql.NullTime
	if read {
		readAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	res, err := s.exec(ctx, `UPDATE health_alerts SET is_read = ?, read_at = ? WHERE id = ? AND is_deleted = ?`,
		read, readAt, id, false)
	if err != nil {
		slog.Error(s.name+".SetAlertRead: update failed", "error", err, "alert_id", id, "read", read)
		return fmt.Errorf("failed to update read status of alert %s: %w", id, err)
	}
	return expectAffected(res)
}

// DeleteAlert soft-deletes an alert so a regenerated alert for the same day can revive it.
func (s *sqlStore) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE health_alerts SET is_deleted = ? WHERE id = ? AND is_deleted = ?`, true, id, false)
	if err != nil {
		slog.Error(s.name+".DeleteAlert: update failed", "error", err, "alert_id", id)
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	return expectAffected(res)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func nonNilSuggestions(s []models.AlertSuggestion) []models.AlertSuggestion {
	if s == nil {
		return []models.AlertSuggestion{}
	}
	return s
}

// truncateDay returns midnight UTC of t's UTC calendar day.
func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
