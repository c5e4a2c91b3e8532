package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/service"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
	"github.com/noah-isme/student-crm-api/pkg/response"
)

type activityService interface {
	AddNote(ctx context.Context, id string, req service.NoteRequest) (*models.StudentRecord, error)
	RecordLogin(ctx context.Context, id string) (*models.StudentRecord, error)
	LogCommunication(ctx context.Context, id string, req service.CommunicationRequest) (*models.StudentRecord, error)
	AddReminder(ctx context.Context, id string, req service.ReminderRequest) (*models.StudentRecord, error)
}

// ActivityHandler exposes the append-only activity and communication
// endpoints for a record.
type ActivityHandler struct {
	activity activityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity activityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// AddNote godoc
// @Summary Append a staff note to a record's activity trail
// @Tags Activity
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.NoteRequest true "Note payload"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/notes [post]
func (h *ActivityHandler) AddNote(c *gin.Context) {
	var req service.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.activity.AddNote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// RecordLogin godoc
// @Summary Append a login event and bump the record's last active time
// @Tags Activity
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/login [post]
func (h *ActivityHandler) RecordLogin(c *gin.Context) {
	record, err := h.activity.RecordLogin(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// LogCommunication godoc
// @Summary Append an entry to a record's communication log
// @Tags Activity
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CommunicationRequest true "Communication payload"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/communications [post]
func (h *ActivityHandler) LogCommunication(c *gin.Context) {
	var req service.CommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.activity.LogCommunication(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AddReminder godoc
// @Summary Append a follow-up reminder to a record's activity trail
// @Tags Activity
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.ReminderRequest true "Reminder payload"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/reminders [post]
func (h *ActivityHandler) AddReminder(c *gin.Context) {
	var req service.ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.activity.AddReminder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
