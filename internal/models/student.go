package models

import "time"

// Status is the closed set of funnel stages a student record can be in.
type Status string

const (
	StatusExploring    Status = "Exploring"
	StatusShortlisting Status = "Shortlisting"
	StatusApplying     Status = "Applying"
	StatusEssay        Status = "Essay"
	StatusSubmitted    Status = "Submitted"
	StatusActive       Status = "Active"
	StatusApplicant    Status = "Applicant"
)

// AllStatuses lists every valid funnel stage.
var AllStatuses = []Status{
	StatusExploring,
	StatusShortlisting,
	StatusApplying,
	StatusEssay,
	StatusSubmitted,
	StatusActive,
	StatusApplicant,
}

// Valid reports whether the status belongs to the closed enumeration.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// StudentRecord is the aggregate root: one student's profile plus its
// append-only activity and communication trails.
type StudentRecord struct {
	ID             string             `db:"id" json:"id"`
	Name           string             `db:"name" json:"name"`
	Email          string             `db:"email" json:"email"`
	Status         Status             `db:"status" json:"status"`
	Grade          string             `db:"grade" json:"grade"`
	Country        string             `db:"country" json:"country"`
	Phone          string             `db:"phone" json:"phone"`
	LastActive     *time.Time         `db:"last_active" json:"lastActive"`
	Activity       ActivityTrail      `db:"activity" json:"activity"`
	Communications CommunicationTrail `db:"communications" json:"communications"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// RecordCategory names the derived roster filters the directory view offers.
type RecordCategory string

const (
	CategoryNotContacted RecordCategory = "notContacted"
	CategoryHighIntent   RecordCategory = "highIntent"
	CategoryNeedsEssay   RecordCategory = "needsEssay"
)

// RecordFilter encapsulates allowed search parameters for listing records.
type RecordFilter struct {
	Search           string
	Status           Status
	Category         RecordCategory
	NotContactedDays int
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}

// RecordSummary aggregates per-status counts for the directory header.
type RecordSummary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}
