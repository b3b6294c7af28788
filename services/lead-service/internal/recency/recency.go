package recency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

// Calculator derives days-since-contact for a lead from its linked threads.
//
// The latest outbound message resets the clock. A lead that was never
// written to ages from the first inbound message instead of staying at zero.
type Calculator struct {
	acquirer store.Acquirer
	now      func() time.Time
}

func NewCalculator(acquirer store.Acquirer, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{acquirer: acquirer, now: now}
}

// Compute reads the lead's history through s. It writes nothing.
func (c *Calculator) Compute(ctx context.Context, s store.Store, userID, leadID uuid.UUID) (models.Recency, error) {
	threadIDs, err := s.LeadThreadIDs(ctx, userID, leadID)
	if err != nil {
		return models.Recency{}, err
	}
	if len(threadIDs) == 0 {
		return models.Recency{}, nil
	}

	last, err := s.LatestMessageIn(ctx, userID, threadIDs, models.Outbound)
	if errors.Is(err, store.ErrNotFound) {
		last, err = s.EarliestMessageIn(ctx, userID, threadIDs, models.Inbound)
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Recency{}, nil
	}
	if err != nil {
		return models.Recency{}, err
	}

	at := last.EffectiveAt()
	return models.Recency{
		DaysSinceContact: models.DaysBetween(at, c.now()),
		LastContactAt:    &at,
	}, nil
}

// Persist computes recency through s and writes it onto the lead.
func (c *Calculator) Persist(ctx context.Context, s store.Store, userID, leadID uuid.UUID) (models.Recency, error) {
	r, err := c.Compute(ctx, s, userID, leadID)
	if err != nil {
		return models.Recency{}, fmt.Errorf("failed to compute recency: %w", err)
	}
	if err := s.UpdateLeadRecency(ctx, userID, leadID, r); err != nil {
		return models.Recency{}, err
	}
	return r, nil
}

// Get acquires a store handle and computes recency without persisting it.
func (c *Calculator) Get(ctx context.Context, userID, leadID uuid.UUID) (models.Recency, error) {
	var r models.Recency
	err := c.acquirer.WithStore(ctx, func(s store.Store) error {
		if _, err := s.GetLead(ctx, userID, leadID); err != nil {
			return err
		}
		var err error
		r, err = c.Compute(ctx, s, userID, leadID)
		return err
	})
	return r, err
}

// Refresh acquires a store handle, recomputes recency and persists it.
// It is safe to call any number of times.
func (c *Calculator) Refresh(ctx context.Context, userID, leadID uuid.UUID) (models.Recency, error) {
	var r models.Recency
	err := c.acquirer.WithStore(ctx, func(s store.Store) error {
		var err error
		r, err = c.Persist(ctx, s, userID, leadID)
		return err
	})
	return r, err
}
