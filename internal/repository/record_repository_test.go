package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-crm-api/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var recordColumns = []string{"id", "name", "email", "status", "grade", "country", "phone", "last_active", "activity", "communications", "created_at", "updated_at"}

func recordRow(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(recordColumns).
		AddRow(id, "Aarav Patel", "aarav@example.com", "Exploring", "11", "India", "+91 555 0100", now, []byte(`[]`), []byte(`[]`), now, now)
}

func TestRecordRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.StudentRecord{
		Name:   "Aarav Patel",
		Email:  "aarav@example.com",
		Status: models.StatusExploring,
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.NotNil(t, record.Activity)
	require.NotNil(t, record.Communications)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, status")).
		WithArgs(record.ID).
		WillReturnRows(recordRow(record.ID))

	found, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, record.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, status")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, status")).
		WithArgs("%aarav%", models.StatusExploring).
		WillReturnRows(recordRow("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WithArgs("%aarav%", models.StatusExploring).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.RecordFilter{
		Search: "Aarav",
		Status: models.StatusExploring,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListHighIntentCategory(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("status IN ($1, $2)")).
		WithArgs(models.StatusApplying, models.StatusSubmitted).
		WillReturnRows(recordRow("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WithArgs(models.StatusApplying, models.StatusSubmitted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.RecordFilter{Category: models.CategoryHighIntent})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListNotContactedCutoff(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("(last_active IS NULL OR last_active < $1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(recordRow("rec-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.RecordFilter{
		Category:         models.CategoryNotContacted,
		NotContactedDays: 14,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetFieldsOrderedSQL(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET name = $2, status = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("rec-1", "Aarav R. Patel", "Applying", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetFields(context.Background(), "rec-1", []ColumnUpdate{
		{Column: "name", Value: "Aarav R. Patel"},
		{Column: "status", Value: "Applying"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetFieldsMissingRecord(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetFields(context.Background(), "missing", []ColumnUpdate{{Column: "name", Value: "X"}})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordRepositorySetFieldsEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	require.NoError(t, repo.SetFields(context.Background(), "rec-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryAppendActivityConcatenates(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET activity = activity || $2::jsonb, updated_at = $3 WHERE id = $1")).
		WithArgs("rec-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendActivity(context.Background(), "rec-1", models.ActivityEvent{
		Kind:      models.ActivityNote,
		Text:      "called home",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryAppendActivityMissingRecord(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET activity = activity")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendActivity(context.Background(), "missing", models.ActivityEvent{
		Kind:      models.ActivityNote,
		Text:      "x",
		Timestamp: time.Now().UTC(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordRepositoryAppendLoginBumpsLastActive(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET activity = activity || $2::jsonb, last_active = $3, updated_at = $3 WHERE id = $1")).
		WithArgs("rec-1", sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := models.ActivityEvent{Kind: models.ActivityLogin, Text: "Student logged in", Timestamp: at}
	require.NoError(t, repo.AppendLogin(context.Background(), "rec-1", event, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryAppendCommunication(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET communications = communications || $2::jsonb, updated_at = $3 WHERE id = $1")).
		WithArgs("rec-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendCommunication(context.Background(), "rec-1", models.CommunicationEvent{
		Type:      models.CommunicationEmail,
		Channel:   "Email",
		Content:   "Welcome aboard",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "rec-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
}

func TestRecordRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("Exploring", 3).
		AddRow("Essay", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS total FROM students GROUP BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, counts[models.StatusExploring])
	require.Equal(t, 1, counts[models.StatusEssay])
	require.NoError(t, mock.ExpectationsWereMet())
}
