package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/repository"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
)

type recordRepository interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentRecord, error)
	Create(ctx context.Context, record *models.StudentRecord) error
	Delete(ctx context.Context, id string) error
	SetFields(ctx context.Context, id string, updates []repository.ColumnUpdate) error
	AppendActivity(ctx context.Context, id string, events ...models.ActivityEvent) error
	AppendLogin(ctx context.Context, id string, event models.ActivityEvent, at time.Time) error
	AppendCommunication(ctx context.Context, id string, event models.CommunicationEvent) error
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type recordObserver interface {
	ObserveCacheLookup(hit bool)
	ObserveMutation(kind string)
}

// CreateRecordRequest holds payload for creating student records.
type CreateRecordRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Status     string `json:"status" validate:"required"`
	Grade      string `json:"grade"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	LastActive string `json:"lastActive"`
}

// NoteRequest holds payload for appending a staff note.
type NoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// CommunicationRequest holds payload for logging an outreach entry.
type CommunicationRequest struct {
	Type    string `json:"type" validate:"required"`
	Channel string `json:"channel" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// ReminderRequest holds payload for scheduling a follow-up reminder.
type ReminderRequest struct {
	Text string `json:"text" validate:"required"`
}

const recordCachePrefix = "records:"

// RecordService owns the read-diff-write sequence for student records and
// serves the roster queries the directory view consumes. Scalar writes and
// trail appends within one mutation are issued sequentially but are not
// atomic with respect to each other or to concurrent calls: a failed append
// after a successful field write is surfaced, not rolled back.
type RecordService struct {
	repo      recordRepository
	cache     listCache
	metrics   recordObserver
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewRecordService constructs the record service. Cache and metrics are
// optional; a nil cache disables list caching.
func NewRecordService(repo recordRepository, cache listCache, metrics recordObserver, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &RecordService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type cachedList struct {
	Records []models.StudentRecord `json:"records"`
	Total   int                    `json:"total"`
}

// List returns records and pagination metadata, serving from the Redis list
// cache when possible.
func (s *RecordService) List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, *models.Pagination, error) {
	key := listCacheKey(filter)

	if s.cache != nil {
		var cached cachedList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.observeCache(true)
			return cached.Records, paginationFor(filter, cached.Total), nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("list cache lookup failed", zap.Error(err))
		}
		s.observeCache(false)
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list records")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedList{Records: records, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("list cache write failed", zap.Error(err))
		}
	}

	return records, paginationFor(filter, total), nil
}

// Get returns one record with both trails.
func (s *RecordService) Get(ctx context.Context, id string) (*models.StudentRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to load record")
	}
	return record, nil
}

// Create registers a new record, seeding the activity trail with a single
// created event, an empty communication log, and empty-string sentinels for
// omitted optional fields.
func (s *RecordService) Create(ctx context.Context, req CreateRecordRequest) (*models.StudentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}
	if !models.Status(req.Status).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status value")
	}
	now := s.now()

	lastActive := &now
	if req.LastActive != "" {
		parsed, err := time.Parse(time.RFC3339, req.LastActive)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lastActive must be RFC 3339")
		}
		utc := parsed.UTC()
		lastActive = &utc
	}

	record := &models.StudentRecord{
		Name:           req.Name,
		Email:          req.Email,
		Status:         models.Status(req.Status),
		Grade:          req.Grade,
		Country:        req.Country,
		Phone:          req.Phone,
		LastActive:     lastActive,
		Activity:       models.ActivityTrail{NewCreatedEvent(now)},
		Communications: models.CommunicationTrail{},
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, storeError(err, "failed to create record")
	}
	s.observeMutation("create")
	s.invalidateListCache(ctx)
	return s.reload(ctx, record.ID)
}

// Update applies a partial scalar update: fetch current state, diff, format
// edit events, write only the changed columns, append the events, and return
// the re-read record. A zero-diff update issues no writes at all.
func (s *RecordService) Update(ctx context.Context, id string, req UpdateRecordRequest) (*models.StudentRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := ComputeChanges(prev, req)
	if len(changes) == 0 {
		return prev, nil
	}

	now := s.now()
	events := FormatEdits(changes, now)

	if err := s.repo.SetFields(ctx, id, columnUpdates(changes)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to update record fields")
	}

	// The trail may be left short when this append fails after the field
	// write landed; the record itself remains the source of truth.
	if err := s.repo.AppendActivity(ctx, id, events...); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "failed to append edit events")
	}

	s.observeMutation("edit")
	s.invalidateListCache(ctx)
	return s.reload(ctx, id)
}

// Delete removes a record permanently.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return storeError(err, "failed to delete record")
	}
	s.observeMutation("delete")
	s.invalidateListCache(ctx)
	return nil
}

// Summary aggregates per-status counts for the directory header.
func (s *RecordService) Summary(ctx context.Context) (*models.RecordSummary, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, storeError(err, "failed to summarise records")
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &models.RecordSummary{Total: total, ByStatus: counts}, nil
}

// AddNote appends exactly one note event to the record's activity trail.
func (s *RecordService) AddNote(ctx context.Context, id string, req NoteRequest) (*models.StudentRecord, error) {
	event, err := NewNoteEvent(req.Note, s.now())
	if err != nil {
		return nil, err
	}
	return s.appendActivity(ctx, id, "note", event)
}

// RecordLogin appends a login event and bumps lastActive to the current
// server time as a side effect of the same call.
func (s *RecordService) RecordLogin(ctx context.Context, id string) (*models.StudentRecord, error) {
	now := s.now()
	if err := s.repo.AppendLogin(ctx, id, NewLoginEvent(now), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to record login")
	}
	s.observeMutation("login")
	s.invalidateListCache(ctx)
	return s.reload(ctx, id)
}

// LogCommunication appends one entry to the communication log. Nothing is
// written to the activity trail.
func (s *RecordService) LogCommunication(ctx context.Context, id string, req CommunicationRequest) (*models.StudentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid communication payload")
	}
	event, err := NewCommunicationEvent(req.Type, req.Content, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.AppendCommunication(ctx, id, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to log communication")
	}
	s.observeMutation("communication")
	s.invalidateListCache(ctx)
	return s.reload(ctx, id)
}

// AddReminder appends a reminder event with done=false.
func (s *RecordService) AddReminder(ctx context.Context, id string, req ReminderRequest) (*models.StudentRecord, error) {
	event, err := NewReminderEvent(req.Text, s.now())
	if err != nil {
		return nil, err
	}
	return s.appendActivity(ctx, id, "reminder", event)
}

func (s *RecordService) appendActivity(ctx context.Context, id, kind string, event models.ActivityEvent) (*models.StudentRecord, error) {
	if err := s.repo.AppendActivity(ctx, id, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to append activity")
	}
	s.observeMutation(kind)
	s.invalidateListCache(ctx)
	return s.reload(ctx, id)
}

// reload re-reads the durable state after a write so callers observe what the
// store accepted, never a locally reconstructed object.
func (s *RecordService) reload(ctx context.Context, id string) (*models.StudentRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, storeError(err, "failed to reload record")
	}
	return record, nil
}

func (s *RecordService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, recordCachePrefix+"*"); err != nil {
		s.logger.Warn("list cache invalidation failed", zap.Error(err))
	}
}

func (s *RecordService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(hit)
	}
}

func (s *RecordService) observeMutation(kind string) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(kind)
	}
}

// columnUpdates translates field changes into column writes, preserving the
// fixed diff order.
func columnUpdates(changes []models.FieldChange) []repository.ColumnUpdate {
	updates := make([]repository.ColumnUpdate, 0, len(changes))
	for _, change := range changes {
		column := fieldColumn[change.Field]
		var value interface{} = change.New
		if column == "last_active" {
			value = ParseLastActive(change.New)
		}
		updates = append(updates, repository.ColumnUpdate{Column: column, Value: value})
	}
	return updates
}

func listCacheKey(filter models.RecordFilter) string {
	return fmt.Sprintf("%slist:%s|%s|%s|%d|%d|%d|%s|%s",
		recordCachePrefix,
		filter.Search,
		filter.Status,
		filter.Category,
		filter.NotContactedDays,
		filter.Page,
		filter.PageSize,
		filter.SortBy,
		filter.SortOrder,
	)
}

func paginationFor(filter models.RecordFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func storeError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrStore.Code, appErrors.ErrStore.Status, message)
}
