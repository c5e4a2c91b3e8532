package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/service"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
)

type activityServiceMock struct {
	resp     *models.StudentRecord
	err      error
	lastID   string
	lastNote service.NoteRequest
	lastComm service.CommunicationRequest
}

func (m *activityServiceMock) AddNote(ctx context.Context, id string, req service.NoteRequest) (*models.StudentRecord, error) {
	m.lastID = id
	m.lastNote = req
	return m.resp, m.err
}

func (m *activityServiceMock) RecordLogin(ctx context.Context, id string) (*models.StudentRecord, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *activityServiceMock) LogCommunication(ctx context.Context, id string, req service.CommunicationRequest) (*models.StudentRecord, error) {
	m.lastID = id
	m.lastComm = req
	return m.resp, m.err
}

func (m *activityServiceMock) AddReminder(ctx context.Context, id string, req service.ReminderRequest) (*models.StudentRecord, error) {
	m.lastID = id
	return m.resp, m.err
}

func TestActivityHandlerAddNote(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &activityServiceMock{resp: &models.StudentRecord{ID: "rec-1"}}
	handler := NewActivityHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records/rec-1/notes", bytes.NewBufferString(`{"note":"called home"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.AddNote(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rec-1", mockSvc.lastID)
	assert.Equal(t, "called home", mockSvc.lastNote.Note)
}

func TestActivityHandlerAddNoteInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewActivityHandler(&activityServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records/rec-1/notes", bytes.NewBufferString(`{"note":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.AddNote(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityHandlerRecordLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &activityServiceMock{resp: &models.StudentRecord{ID: "rec-1"}}
	handler := NewActivityHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records/rec-1/login", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.RecordLogin(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rec-1", mockSvc.lastID)
}

func TestActivityHandlerLogCommunication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &activityServiceMock{resp: &models.StudentRecord{ID: "rec-1"}}
	handler := NewActivityHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"type":"email","channel":"Email","content":"Welcome"}`
	req, _ := http.NewRequest(http.MethodPost, "/records/rec-1/communications", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.LogCommunication(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "email", mockSvc.lastComm.Type)
	assert.Equal(t, "Welcome", mockSvc.lastComm.Content)
}

func TestActivityHandlerAddReminderNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &activityServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "record not found")}
	handler := NewActivityHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records/missing/reminders", bytes.NewBufferString(`{"text":"follow up"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.AddReminder(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
