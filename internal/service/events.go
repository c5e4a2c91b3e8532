package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/student-crm-api/internal/models"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
)

// The event formatter turns field changes and direct actions into immutable
// trail entries. Timestamps always come from the server clock passed in by
// the coordinator, never from the client.

// FormatEdits produces one edit event per field change, preserving the
// descriptor order. Previous and new values are embedded verbatim so the
// audit trail stays complete.
func FormatEdits(changes []models.FieldChange, at time.Time) []models.ActivityEvent {
	events := make([]models.ActivityEvent, 0, len(changes))
	for _, change := range changes {
		events = append(events, models.ActivityEvent{
			Kind:      models.ActivityEdit,
			Text:      fmt.Sprintf("%s changed from %q to %q", change.Field, change.Previous, change.New),
			Timestamp: at,
		})
	}
	return events
}

// NewCreatedEvent seeds a fresh record's activity trail.
func NewCreatedEvent(at time.Time) models.ActivityEvent {
	return models.ActivityEvent{
		Kind:      models.ActivityCreated,
		Text:      "Student account created",
		Timestamp: at,
	}
}

// NewNoteEvent validates and formats a staff note.
func NewNoteEvent(note string, at time.Time) (models.ActivityEvent, error) {
	if strings.TrimSpace(note) == "" {
		return models.ActivityEvent{}, appErrors.Clone(appErrors.ErrValidation, "note must not be empty")
	}
	return models.ActivityEvent{
		Kind:      models.ActivityNote,
		Text:      note,
		Timestamp: at,
	}, nil
}

// NewLoginEvent records a student portal login.
func NewLoginEvent(at time.Time) models.ActivityEvent {
	return models.ActivityEvent{
		Kind:      models.ActivityLogin,
		Text:      "Student logged in",
		Timestamp: at,
	}
}

// NewReminderEvent validates and formats a follow-up reminder. Done starts
// false; completion has no endpoint yet.
func NewReminderEvent(text string, at time.Time) (models.ActivityEvent, error) {
	if strings.TrimSpace(text) == "" {
		return models.ActivityEvent{}, appErrors.Clone(appErrors.ErrValidation, "reminder text must not be empty")
	}
	done := false
	return models.ActivityEvent{
		Kind:      models.ActivityReminder,
		Text:      text,
		Timestamp: at,
		Done:      &done,
	}, nil
}

// NewCommunicationEvent validates and formats a logged outreach entry. The
// channel label is derived from the type rather than trusted from the client.
func NewCommunicationEvent(commType, content string, at time.Time) (models.CommunicationEvent, error) {
	parsed := models.CommunicationType(commType)
	if !parsed.Valid() {
		return models.CommunicationEvent{}, appErrors.Clone(appErrors.ErrValidation, "communication type must be email or sms")
	}
	if strings.TrimSpace(content) == "" {
		return models.CommunicationEvent{}, appErrors.Clone(appErrors.ErrValidation, "communication content must not be empty")
	}
	return models.CommunicationEvent{
		Type:      parsed,
		Channel:   parsed.Label(),
		Content:   content,
		Timestamp: at,
	}, nil
}
