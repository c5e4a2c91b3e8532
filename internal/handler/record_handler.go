package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/service"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
	"github.com/noah-isme/student-crm-api/pkg/response"
)

type recordService interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.StudentRecord, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.StudentRecord, error)
	Create(ctx context.Context, req service.CreateRecordRequest) (*models.StudentRecord, error)
	Update(ctx context.Context, id string, req service.UpdateRecordRequest) (*models.StudentRecord, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) (*models.RecordSummary, error)
}

// RecordHandler exposes student record endpoints.
type RecordHandler struct {
	records recordService
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(records recordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// List godoc
// @Summary List student records
// @Tags Records
// @Produce json
// @Param search query string false "Search by name or email"
// @Param status query string false "Filter by status"
// @Param category query string false "Derived category (notContacted, highIntent, needsEssay)"
// @Param notContactedDays query int false "Days threshold for notContacted"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	var filter models.RecordFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = models.Status(c.Query("status"))
	filter.Category = models.RecordCategory(c.Query("category"))
	if days, err := strconv.Atoi(c.DefaultQuery("notContactedDays", "7")); err == nil {
		filter.NotContactedDays = days
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, pagination, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get a student record with its activity and communication trails
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	record, err := h.records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create a student record
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.CreateRecordRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	var req service.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.records.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Legacy contract: creation answers 200, not 201.
	response.JSON(c, http.StatusOK, record, nil)
}

// Update godoc
// @Summary Update a student record, logging one edit event per changed field
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateRecordRequest true "Partial record payload"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [put]
func (h *RecordHandler) Update(c *gin.Context) {
	var req service.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.records.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a student record permanently
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.records.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"success": true}, nil)
}

// Summary godoc
// @Summary Aggregate record counts by status
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /records/summary [get]
func (h *RecordHandler) Summary(c *gin.Context) {
	summary, err := h.records.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
