package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stoik/inboxiq/internal/models"
)

// ErrNotFound is returned when a row does not exist for the given user
var ErrNotFound = errors.New("not found")

// Store is the storage boundary of the lead pipeline.
// Every method is scoped by the owning user.
type Store interface {
	// UnlinkedThreads returns active threads with no lead, newest updated first
	UnlinkedThreads(ctx context.Context, userID uuid.UUID) ([]models.Thread, error)

	// LatestThreadForLead returns the most recently updated thread linked to the lead
	LatestThreadForLead(ctx context.Context, userID, leadID uuid.UUID) (models.Thread, error)

	// LeadThreadIDs returns the ids of every thread linked to the lead
	LeadThreadIDs(ctx context.Context, userID, leadID uuid.UUID) ([]uuid.UUID, error)

	// LinkThread sets the thread's lead and bumps updated_at
	LinkThread(ctx context.Context, userID, threadID, leadID uuid.UUID) error

	// LatestMessage returns the thread's newest message by effective timestamp
	LatestMessage(ctx context.Context, userID, threadID uuid.UUID) (models.Message, error)

	// ThreadMessages returns every message of the thread, newest first
	ThreadMessages(ctx context.Context, userID, threadID uuid.UUID) ([]models.Message, error)

	// LatestMessageIn returns the newest message with direction dir across threadIDs
	LatestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error)

	// EarliestMessageIn returns the oldest message with direction dir across threadIDs
	EarliestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error)

	// InsertMessage stores msg and returns its id
	InsertMessage(ctx context.Context, msg models.Message) (uuid.UUID, error)

	GetLead(ctx context.Context, userID, leadID uuid.UUID) (models.Lead, error)
	FindLeadByEmail(ctx context.Context, userID uuid.UUID, email string) (models.Lead, error)

	// CreateLead inserts lead unless (user, email) already exists; emails
	// compare case-insensitively here and in FindLeadByEmail.
	// created reports whether this call inserted the row.
	CreateLead(ctx context.Context, lead models.Lead) (id uuid.UUID, created bool, err error)

	UpdateLeadRecency(ctx context.Context, userID, leadID uuid.UUID, r models.Recency) error

	// InTx runs fn against a Store bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}

// Acquirer hands out Store handles scoped to one operation.
// The handle is released when fn returns, whatever the outcome.
type Acquirer interface {
	WithStore(ctx context.Context, fn func(Store) error) error
}
