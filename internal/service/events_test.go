package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-crm-api/internal/models"
)

var eventTime = time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC)

func TestFormatEditsText(t *testing.T) {
	changes := []models.FieldChange{
		{Field: "Status", Previous: "Exploring", New: "Applying"},
		{Field: "Phone", Previous: "+91 555 0100", New: ""},
	}

	events := FormatEdits(changes, eventTime)

	require.Len(t, events, 2)
	assert.Equal(t, models.ActivityEdit, events[0].Kind)
	assert.Equal(t, `Status changed from "Exploring" to "Applying"`, events[0].Text)
	assert.Equal(t, `Phone changed from "+91 555 0100" to ""`, events[1].Text)
	for _, e := range events {
		assert.True(t, e.Timestamp.Equal(eventTime))
		assert.Nil(t, e.Done)
	}
}

func TestNewCreatedEvent(t *testing.T) {
	event := NewCreatedEvent(eventTime)

	assert.Equal(t, models.ActivityCreated, event.Kind)
	assert.Equal(t, "Student account created", event.Text)
	assert.True(t, event.Timestamp.Equal(eventTime))
}

func TestNewNoteEvent(t *testing.T) {
	event, err := NewNoteEvent("Called about essay deadline", eventTime)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityNote, event.Kind)
	assert.Equal(t, "Called about essay deadline", event.Text)

	_, err = NewNoteEvent("   ", eventTime)
	require.Error(t, err)
}

func TestNewLoginEvent(t *testing.T) {
	event := NewLoginEvent(eventTime)

	assert.Equal(t, models.ActivityLogin, event.Kind)
	assert.Equal(t, "Student logged in", event.Text)
}

func TestNewReminderEventDoneStartsFalse(t *testing.T) {
	event, err := NewReminderEvent("Follow up next Tuesday", eventTime)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityReminder, event.Kind)
	require.NotNil(t, event.Done)
	assert.False(t, *event.Done)

	_, err = NewReminderEvent("", eventTime)
	require.Error(t, err)
}

func TestNewCommunicationEventDerivesChannel(t *testing.T) {
	email, err := NewCommunicationEvent("email", "Sent brochure", eventTime)
	require.NoError(t, err)
	assert.Equal(t, models.CommunicationEmail, email.Type)
	assert.Equal(t, "Email", email.Channel)

	sms, err := NewCommunicationEvent("sms", "Deadline reminder", eventTime)
	require.NoError(t, err)
	assert.Equal(t, "SMS", sms.Channel)

	_, err = NewCommunicationEvent("carrier-pigeon", "hi", eventTime)
	require.Error(t, err)

	_, err = NewCommunicationEvent("email", "  ", eventTime)
	require.Error(t, err)
}
