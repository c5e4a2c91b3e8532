package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-crm-api/internal/models"
)

// ColumnUpdate pairs one students table column with its new value. The
// mutation coordinator supplies these in the fixed diff order so the
// generated SQL is deterministic.
type ColumnUpdate struct {
	Column string
	Value  interface{}
}

// RecordRepository manages persistence for student records and their trails.
// Trail appends go through Postgres JSONB concatenation so two concurrent
// appends to the same record never overwrite each other: each UPDATE is a
// single atomic statement, not a read-modify-write cycle.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordSelectColumns = `id, name, email, status, grade, country, phone, last_active, activity, communications, created_at, updated_at`

// List returns records matching the provided filters.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, int, error) {
	base := "FROM students"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	switch filter.Category {
	case models.CategoryHighIntent:
		conditions = append(conditions, fmt.Sprintf("status IN ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, models.StatusApplying, models.StatusSubmitted)
	case models.CategoryNeedsEssay:
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, models.StatusEssay)
	case models.CategoryNotContacted:
		days := filter.NotContactedDays
		if days <= 0 {
			days = 7
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		conditions = append(conditions, fmt.Sprintf("(last_active IS NULL OR last_active < $%d)", len(args)+1))
		args = append(args, cutoff)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":        "name",
		"email":       "email",
		"status":      "status",
		"last_active": "last_active",
		"created_at":  "created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", recordSelectColumns, base, column, order, size, offset)

	var records []models.StudentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}

// FindByID fetches a record together with both trails.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.StudentRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", recordSelectColumns)
	var record models.StudentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a new record. The caller seeds the activity trail with the
// created event and an empty communications list.
func (r *RecordRepository) Create(ctx context.Context, record *models.StudentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Activity == nil {
		record.Activity = models.ActivityTrail{}
	}
	if record.Communications == nil {
		record.Communications = models.CommunicationTrail{}
	}
	const query = `INSERT INTO students (id, name, email, status, grade, country, phone, last_active, activity, communications, created_at, updated_at)
        VALUES (:id, :name, :email, :status, :grade, :country, :phone, :last_active, :activity, :communications, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Delete removes a record permanently.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return requireRow(res)
}

// SetFields applies a partial scalar update containing only changed columns.
// There is no version check before the write: concurrent updates to the same
// record resolve last-writer-wins per field.
func (r *RecordRepository) SetFields(ctx context.Context, id string, updates []ColumnUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	assignments := make([]string, 0, len(updates)+1)
	args := []interface{}{id}
	for _, u := range updates {
		args = append(args, u.Value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", u.Column, len(args)))
	}
	args = append(args, time.Now().UTC())
	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)))

	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $1", strings.Join(assignments, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set record fields: %w", err)
	}
	return requireRow(res)
}

// AppendActivity atomically appends events to the record's activity trail.
func (r *RecordRepository) AppendActivity(ctx context.Context, id string, events ...models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal activity events: %w", err)
	}
	const query = `UPDATE students SET activity = activity || $2::jsonb, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return requireRow(res)
}

// AppendLogin appends the login event and bumps last_active in one statement.
func (r *RecordRepository) AppendLogin(ctx context.Context, id string, event models.ActivityEvent, at time.Time) error {
	payload, err := json.Marshal([]models.ActivityEvent{event})
	if err != nil {
		return fmt.Errorf("marshal login event: %w", err)
	}
	const query = `UPDATE students SET activity = activity || $2::jsonb, last_active = $3, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, payload, at)
	if err != nil {
		return fmt.Errorf("append login: %w", err)
	}
	return requireRow(res)
}

// AppendCommunication atomically appends one entry to the communication log.
func (r *RecordRepository) AppendCommunication(ctx context.Context, id string, event models.CommunicationEvent) error {
	payload, err := json.Marshal([]models.CommunicationEvent{event})
	if err != nil {
		return fmt.Errorf("marshal communication event: %w", err)
	}
	const query = `UPDATE students SET communications = communications || $2::jsonb, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append communication: %w", err)
	}
	return requireRow(res)
}

// CountByStatus returns per-status totals for the directory summary.
func (r *RecordRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.db.QueryxContext(ctx, "SELECT status, COUNT(*) AS total FROM students GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status models.Status
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
