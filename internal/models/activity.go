package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityKind enumerates the event producers sharing a record's trail.
type ActivityKind string

const (
	ActivityCreated  ActivityKind = "created"
	ActivityEdit     ActivityKind = "edit"
	ActivityNote     ActivityKind = "note"
	ActivityLogin    ActivityKind = "login"
	ActivityReminder ActivityKind = "reminder"
)

// ActivityEvent is one immutable entry in a record's activity trail.
// Timestamps are assigned server-side at append time; Done is only present
// on reminder events and has no completion endpoint yet.
type ActivityEvent struct {
	Kind      ActivityKind `json:"kind"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
	Done      *bool        `json:"done,omitempty"`
}

// CommunicationType distinguishes logged outreach channels.
type CommunicationType string

const (
	CommunicationEmail CommunicationType = "email"
	CommunicationSMS   CommunicationType = "sms"
)

// Valid reports whether the communication type is known.
func (t CommunicationType) Valid() bool {
	return t == CommunicationEmail || t == CommunicationSMS
}

// Label returns the display channel derived from the type.
func (t CommunicationType) Label() string {
	if t == CommunicationSMS {
		return "SMS"
	}
	return "Email"
}

// CommunicationEvent is one immutable entry in a record's communication log.
type CommunicationEvent struct {
	Type      CommunicationType `json:"type"`
	Channel   string            `json:"channel"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
}

// ActivityTrail is the append-only event list persisted as a JSONB array.
type ActivityTrail []ActivityEvent

// Value marshals the trail for persistence.
func (t ActivityTrail) Value() (driver.Value, error) {
	if t == nil {
		t = ActivityTrail{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal activity trail: %w", err)
	}
	return data, nil
}

// Scan loads the trail from its JSONB representation.
func (t *ActivityTrail) Scan(src interface{}) error {
	return scanJSON(src, t, "activity trail")
}

// CommunicationTrail is the append-only communication list persisted as JSONB.
type CommunicationTrail []CommunicationEvent

// Value marshals the trail for persistence.
func (t CommunicationTrail) Value() (driver.Value, error) {
	if t == nil {
		t = CommunicationTrail{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal communication trail: %w", err)
	}
	return data, nil
}

// Scan loads the trail from its JSONB representation.
func (t *CommunicationTrail) Scan(src interface{}) error {
	return scanJSON(src, t, "communication trail")
}

func scanJSON(src, dest interface{}, label string) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan %s: unsupported type %T", label, src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("scan %s: %w", label, err)
	}
	return nil
}

// FieldChange describes one scalar field edit produced by the diff engine.
// It is ephemeral: consumed by the event formatter, never persisted directly.
type FieldChange struct {
	Field    string
	Previous string
	New      string
}
