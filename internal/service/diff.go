package service

import (
	"time"

	"github.com/noah-isme/student-crm-api/internal/models"
	appErrors "github.com/noah-isme/student-crm-api/pkg/errors"
)

// UpdateRecordRequest is a tri-state partial update: a nil field was absent
// from the payload and leaves the stored value untouched, while a pointer to
// the empty string is an explicit clear. LastActive carries an RFC 3339
// timestamp or the empty string for "unknown".
type UpdateRecordRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Status     *string `json:"status"`
	Grade      *string `json:"grade"`
	Country    *string `json:"country"`
	Phone      *string `json:"phone"`
	LastActive *string `json:"lastActive"`
}

// Validate rejects values outside the closed status enumeration and
// unparseable timestamps before any diffing happens.
func (req UpdateRecordRequest) Validate() error {
	if req.Status != nil && !models.Status(*req.Status).Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid status value")
	}
	if req.Name != nil && *req.Name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
	}
	if req.Email != nil && *req.Email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "email must not be empty")
	}
	if req.LastActive != nil && *req.LastActive != "" {
		if _, err := time.Parse(time.RFC3339, *req.LastActive); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "lastActive must be RFC 3339")
		}
	}
	return nil
}

// diffFields fixes the deterministic emit order of edit events. Arrival order
// of the payload never changes it.
var diffFields = []string{
	fieldName,
	fieldEmail,
	fieldStatus,
	fieldGrade,
	fieldCountry,
	fieldPhone,
	fieldLastActive,
}

const (
	fieldName       = "Name"
	fieldEmail      = "Email"
	fieldStatus     = "Status"
	fieldGrade      = "Grade"
	fieldCountry    = "Country"
	fieldPhone      = "Phone"
	fieldLastActive = "Last active"
)

// fieldColumn maps display field names onto students table columns.
var fieldColumn = map[string]string{
	fieldName:       "name",
	fieldEmail:      "email",
	fieldStatus:     "status",
	fieldGrade:      "grade",
	fieldCountry:    "country",
	fieldPhone:      "phone",
	fieldLastActive: "last_active",
}

// ComputeChanges compares the incoming partial update against the stored
// record and emits one descriptor per differing field, in fixed field order.
// Pure function: no side effects, exact string inequality only.
func ComputeChanges(prev *models.StudentRecord, req UpdateRecordRequest) []models.FieldChange {
	incoming := map[string]*string{
		fieldName:       req.Name,
		fieldEmail:      req.Email,
		fieldStatus:     req.Status,
		fieldGrade:      req.Grade,
		fieldCountry:    req.Country,
		fieldPhone:      req.Phone,
		fieldLastActive: normalizeTimestamp(req.LastActive),
	}
	stored := map[string]string{
		fieldName:       prev.Name,
		fieldEmail:      prev.Email,
		fieldStatus:     string(prev.Status),
		fieldGrade:      prev.Grade,
		fieldCountry:    prev.Country,
		fieldPhone:      prev.Phone,
		fieldLastActive: FormatLastActive(prev.LastActive),
	}

	var changes []models.FieldChange
	for _, field := range diffFields {
		value := incoming[field]
		if value == nil {
			continue
		}
		if *value == stored[field] {
			continue
		}
		changes = append(changes, models.FieldChange{
			Field:    field,
			Previous: stored[field],
			New:      *value,
		})
	}
	return changes
}

// FormatLastActive renders the nullable timestamp the way the diff and the
// edit events display it: empty string for "unknown", RFC 3339 otherwise.
func FormatLastActive(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseLastActive is the inverse of FormatLastActive. Callers validate first;
// an unparseable value degrades to nil.
func ParseLastActive(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// normalizeTimestamp re-renders a validated incoming timestamp so the diff
// compares like against like (e.g. offset notation vs UTC). A different
// spelling of the stored instant therefore diffs as a no-op, not an edit;
// the comparison remains exact string inequality after this canonical form.
func normalizeTimestamp(raw *string) *string {
	if raw == nil {
		return nil
	}
	normalized := FormatLastActive(ParseLastActive(*raw))
	return &normalized
}
