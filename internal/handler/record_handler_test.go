package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/service"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
	"github.com/noah-isme/student-crm-api/pkg/response"
)

type recordServiceMock struct {
	listResp    []models.StudentRecord
	listErr     error
	getResp     *models.StudentRecord
	getErr      error
	createResp  *models.StudentRecord
	createErr   error
	updateResp  *models.StudentRecord
	updateErr   error
	deleteErr   error
	summaryResp *models.RecordSummary
	summaryErr  error
	lastFilter  models.RecordFilter
	lastCreate  service.CreateRecordRequest
	lastID      string
}

func (m *recordServiceMock) List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *recordServiceMock) Get(ctx context.Context, id string) (*models.StudentRecord, error) {
	m.lastID = id
	return m.getResp, m.getErr
}

func (m *recordServiceMock) Create(ctx context.Context, req service.CreateRecordRequest) (*models.StudentRecord, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *recordServiceMock) Update(ctx context.Context, id string, req service.UpdateRecordRequest) (*models.StudentRecord, error) {
	m.lastID = id
	return m.updateResp, m.updateErr
}

func (m *recordServiceMock) Delete(ctx context.Context, id string) error {
	m.lastID = id
	return m.deleteErr
}

func (m *recordServiceMock) Summary(ctx context.Context) (*models.RecordSummary, error) {
	return m.summaryResp, m.summaryErr
}

func TestRecordHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{listResp: []models.StudentRecord{{ID: "rec-1"}}}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/records?search=aarav&status=Exploring&category=notContacted&notContactedDays=14&page=2&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "aarav", mockSvc.lastFilter.Search)
	assert.Equal(t, models.StatusExploring, mockSvc.lastFilter.Status)
	assert.Equal(t, models.CategoryNotContacted, mockSvc.lastFilter.Category)
	assert.Equal(t, 14, mockSvc.lastFilter.NotContactedDays)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
}

func TestRecordHandlerListDefaultsNotContactedDays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/records", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, mockSvc.lastFilter.NotContactedDays)
}

func TestRecordHandlerCreateAnswers200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{createResp: &models.StudentRecord{ID: "rec-1", Name: "Mina"}}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"name":"Mina","email":"mina@example.com","status":"Exploring"}`
	req, _ := http.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Mina", mockSvc.lastCreate.Name)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.NotNil(t, envelope.Data)
}

func TestRecordHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRecordHandler(&recordServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/records", bytes.NewBufferString(`{"name":"Mina"`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "record not found")}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/records/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing", mockSvc.lastID)
}

func TestRecordHandlerDeleteAnswersSuccessFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/records/rec-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Success bool `json:"success"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Success)
}

func TestRecordHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recordServiceMock{summaryResp: &models.RecordSummary{
		Total:    2,
		ByStatus: map[models.Status]int{models.StatusExploring: 2},
	}}
	handler := NewRecordHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/records/summary", nil)
	c.Request = req

	handler.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
}
