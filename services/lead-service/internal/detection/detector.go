package detection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/recency"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidInput is returned before any work is done when the user's
// own address cannot be split into a domain.
var ErrInvalidInput = errors.New("invalid input")

const (
	// ReplyWindow is how recent an outbound reply must be for a thread to
	// count as an active conversation rather than a lead.
	ReplyWindow = 3 * 24 * time.Hour

	// FollowUpDelay is added to now for a new lead's follow_up_due_at hint.
	FollowUpDelay = 24 * time.Hour
)

// Result summarizes one detection run. Errors holds one entry per thread
// that failed; the run itself still completes.
type Result struct {
	LeadsCreated   int      `json:"leads_created"`
	ThreadsUpdated int      `json:"threads_updated"`
	Errors         []string `json:"errors"`
}

type Detector struct {
	acquirer store.Acquirer
	recency  *recency.Calculator
	now      func() time.Time
}

func NewDetector(acquirer store.Acquirer, calc *recency.Calculator, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		acquirer: acquirer,
		recency:  calc,
		now:      now,
	}
}

// Detect scans the user's active, unlinked threads and turns unanswered
// external conversations into leads. Threads are handled one at a time,
// newest first, on a single pooled connection.
func (d *Detector) Detect(ctx context.Context, userID uuid.UUID, userEmail string) (Result, error) {
	at := strings.LastIndex(userEmail, "@")
	if at < 0 {
		return Result{}, fmt.Errorf("%w: user email %q has no @", ErrInvalidInput, userEmail)
	}
	userDomain := strings.ToLower(strings.TrimSpace(userEmail[at+1:]))

	result := Result{Errors: []string{}}
	err := d.acquirer.WithStore(ctx, func(s store.Store) error {
		threads, err := s.UnlinkedThreads(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get unlinked threads: %w", err)
		}

		for _, thread := range threads {
			if err := ctx.Err(); err != nil {
				return err
			}

			// A lead committed before a later step failed still counts.
			created, linked, err := d.processThread(ctx, s, userID, userDomain, thread)
			if created {
				result.LeadsCreated++
			}
			if err != nil {
				log.Printf("Error detecting lead for thread %s (user %s): %v", thread.ID, userID, err)
				result.Errors = append(result.Errors, fmt.Sprintf("thread %s: %v", thread.ID, err))
				continue
			}
			if linked {
				result.ThreadsUpdated++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	log.Printf("Lead detection for user %s | Leads created: %d | Threads updated: %d | Errors: %d",
		userID, result.LeadsCreated, result.ThreadsUpdated, len(result.Errors))
	return result, nil
}

// processThread reports whether a lead was created and whether the thread
// was linked. Ineligible threads return false, false, nil.
func (d *Detector) processThread(ctx context.Context, s store.Store, userID uuid.UUID, userDomain string, thread models.Thread) (bool, bool, error) {
	latest, err := s.LatestMessage(ctx, userID, thread.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	sender := models.Address(latest.From)
	senderDomain := models.Domain(sender)
	if senderDomain == "" || senderDomain == userDomain {
		return false, false, nil
	}

	msgs, err := s.ThreadMessages(ctx, userID, thread.ID)
	if err != nil {
		return false, false, err
	}
	if !d.awaitingReply(msgs) {
		return false, false, nil
	}

	var leadID uuid.UUID
	var created bool
	err = s.InTx(ctx, func(tx store.Store) error {
		var err error
		leadID, created, err = d.resolveLead(ctx, tx, userID, sender, senderDomain)
		if err != nil {
			return err
		}
		if err := tx.LinkThread(ctx, userID, thread.ID, leadID); err != nil {
			return err
		}
		_, err = d.recency.Persist(ctx, tx, userID, leadID)
		return err
	})
	if err != nil {
		return false, false, err
	}

	// Re-link and recompute outside the transaction. For an existing lead
	// this folds the newly linked thread into its bookkeeping; the writes
	// are idempotent.
	if err := s.LinkThread(ctx, userID, thread.ID, leadID); err != nil {
		return created, false, err
	}
	if _, err := d.recency.Persist(ctx, s, userID, leadID); err != nil {
		return created, false, err
	}

	return created, true, nil
}

// awaitingReply is true when the thread has no outbound message or the
// latest one is older than ReplyWindow.
func (d *Detector) awaitingReply(msgs []models.Message) bool {
	var lastOut *time.Time
	for _, m := range msgs {
		if m.Direction != models.Outbound {
			continue
		}
		at := m.EffectiveAt()
		if lastOut == nil || at.After(*lastOut) {
			lastOut = &at
		}
	}
	if lastOut == nil {
		return true
	}
	return lastOut.Before(d.now().Add(-ReplyWindow))
}

func (d *Detector) resolveLead(ctx context.Context, s store.Store, userID uuid.UUID, sender, senderDomain string) (uuid.UUID, bool, error) {
	existing, err := s.FindLeadByEmail(ctx, userID, sender)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, false, err
	}

	lead := models.Lead{
		ID:          uuid.New(),
		UserID:      userID,
		Email:       sender,
		ContactName: ContactName(sender),
		Company:     senderDomain,
		Status:      models.LeadWarm,
		Metadata: map[string]any{
			models.MetaFollowUpDueAt: d.now().Add(FollowUpDelay).UTC().Format(time.RFC3339),
		},
	}
	return s.CreateLead(ctx, lead)
}

// ContactName builds a display name from an address's local part:
// "jane.doe_smith@x.com" becomes "Jane Doe Smith".
func ContactName(address string) string {
	local := models.Address(address)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ").Replace(local)
	words := strings.Fields(local)
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(words, " "))
}
