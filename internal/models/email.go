package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the normalized direction of a stored email.
// Storage holds two spellings per direction; they are folded here on read.
type Direction int

const (
	Inbound Direction = iota + 1
	Outbound
)

// ParseDirection maps a stored direction spelling onto a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming", "inbound":
		return Inbound, nil
	case "outgoing", "outbound":
		return Outbound, nil
	}
	return 0, fmt.Errorf("unknown email direction %q", s)
}

// String returns the canonical spelling written for new rows.
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "incoming"
	case Outbound:
		return "outgoing"
	}
	return "unknown"
}

// Spellings lists every stored spelling of d, for ANY($n) filters.
func (d Direction) Spellings() []string {
	switch d {
	case Inbound:
		return []string{"incoming", "inbound"}
	case Outbound:
		return []string{"outgoing", "outbound"}
	}
	return nil
}

type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
)

// Thread is one stored email conversation (email_threads table)
type Thread struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	UserID         uuid.UUID    `db:"user_id" json:"user_id"`
	Subject        string       `db:"subject" json:"subject"`
	ConversationID string       `db:"gmail_thread_id" json:"conversation_id"`
	LeadID         *uuid.UUID   `db:"lead_id" json:"lead_id,omitempty"`
	Status         ThreadStatus `db:"status" json:"status"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

type MessageStatus string

const (
	MessageReceived MessageStatus = "received"
	MessageSent     MessageStatus = "sent"
	MessageDraft    MessageStatus = "draft"
)

// Message is one stored email (emails table).
// CreatedAt is always set, so EffectiveAt always resolves.
type Message struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	UserID     uuid.UUID     `db:"user_id" json:"user_id"`
	ThreadID   uuid.UUID     `db:"thread_id" json:"thread_id"`
	Direction  Direction     `db:"direction" json:"-"`
	From       string        `db:"from_email" json:"from"`
	To         string        `db:"to_email" json:"to"`
	Subject    string        `db:"subject" json:"subject"`
	Snippet    string        `db:"snippet" json:"snippet"`
	BodyText   string        `db:"body_text" json:"body_text,omitempty"`
	BodyHTML   string        `db:"body_html" json:"body_html,omitempty"`
	Status     MessageStatus `db:"status" json:"status"`
	IsAIDraft  bool          `db:"is_ai_draft" json:"is_ai_draft"`
	Tone       string        `db:"tone" json:"tone,omitempty"`
	ReceivedAt *time.Time    `db:"received_at" json:"received_at,omitempty"`
	SentAt     *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// EffectiveAt is the first non-nil of received_at, sent_at and created_at.
func (m Message) EffectiveAt() time.Time {
	if m.ReceivedAt != nil {
		return *m.ReceivedAt
	}
	if m.SentAt != nil {
		return *m.SentAt
	}
	return m.CreatedAt
}

// Domain splits an address and returns its lowercase domain, or "" when
// there is no "@". Display-name forms like `Bob <bob@x.com>` are accepted.
func Domain(address string) string {
	addr := Address(address)
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}

// Address strips an optional display name and angle brackets.
func Address(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.LastIndex(s, "<"); start >= 0 {
		if end := strings.Index(s[start:], ">"); end > 0 {
			s = s[start+1 : start+end]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
