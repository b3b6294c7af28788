package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type LeadStatus string

const (
	LeadHot  LeadStatus = "hot"
	LeadWarm LeadStatus = "warm"
	LeadCold LeadStatus = "cold"
)

// MetaFollowUpDueAt is the leads.metadata key for the next follow-up hint
const MetaFollowUpDueAt = "follow_up_due_at"

// Lead is a prospect derived from an external sender.
// (UserID, Email) is unique.
type Lead struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	UserID           uuid.UUID      `db:"user_id" json:"user_id"`
	Email            string         `db:"email" json:"email"`
	ContactName      string         `db:"contact_name" json:"contact_name"`
	Company          string         `db:"company" json:"company"`
	Status           LeadStatus     `db:"status" json:"status"`
	LastContactAt    *time.Time     `db:"last_contact_at" json:"last_contact_at"`
	DaysSinceContact int            `db:"days_since_contact" json:"days_since_contact"`
	Metadata         map[string]any `db:"metadata" json:"metadata"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Recency is the contact bookkeeping written back onto a lead
type Recency struct {
	DaysSinceContact int        `json:"days_since_contact"`
	LastContactAt    *time.Time `json:"last_contact_at"`
}

// DaysBetween returns whole days from then to now, never negative.
func DaysBetween(then, now time.Time) int {
	d := now.Sub(then)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Hours() / 24))
}
