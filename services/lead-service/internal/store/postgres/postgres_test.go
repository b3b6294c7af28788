package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/db"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

// testPool is nil unless DATABASE_URL points at a disposable database.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", url, err)
		os.Exit(1)
	}
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

func withStore(t *testing.T, fn func(s store.Store)) {
	t.Helper()
	if testPool == nil {
		t.Skip("DATABASE_URL not set")
	}
	err := NewPool(testPool).WithStore(context.Background(), func(s store.Store) error {
		fn(s)
		return nil
	})
	if err != nil {
		t.Fatalf("WithStore() error = %v", err)
	}
}

func insertThread(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	if testPool == nil {
		t.Skip("DATABASE_URL not set")
	}
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO email_threads (id, user_id, subject, status) VALUES ($1, $2, 'Pricing', 'active')`,
		id, userID,
	)
	if err != nil {
		t.Fatalf("insert thread: %v", err)
	}
	return id
}

// insertRawMessage writes direction verbatim so legacy spellings can be stored.
func insertRawMessage(t *testing.T, userID, threadID uuid.UUID, direction string, at time.Time) uuid.UUID {
	t.Helper()
	if testPool == nil {
		t.Skip("DATABASE_URL not set")
	}
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO emails (id, user_id, thread_id, direction, from_email, received_at, created_at)
		VALUES ($1, $2, $3, $4, 'bob@other.com', $5, $5)`,
		id, userID, threadID, direction, at,
	)
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	return id
}

func TestCreateLeadDedupsIgnoringCase(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	withStore(t, func(s store.Store) {
		first, created, err := s.CreateLead(ctx, models.Lead{UserID: userID, Email: "bob@other.com", Status: models.LeadWarm})
		if err != nil || !created {
			t.Fatalf("CreateLead() = %s, %v, %v; want created", first, created, err)
		}

		again, created, err := s.CreateLead(ctx, models.Lead{UserID: userID, Email: "BOB@Other.com", Status: models.LeadWarm})
		if err != nil {
			t.Fatalf("CreateLead() error = %v", err)
		}
		if created || again != first {
			t.Errorf("CreateLead() = %s, %v; want existing %s", again, created, first)
		}

		found, err := s.FindLeadByEmail(ctx, userID, "Bob@other.com")
		if err != nil || found.ID != first {
			t.Errorf("FindLeadByEmail() = %s, %v; want %s", found.ID, err, first)
		}
	})
}

func TestEdgeMessagesFoldDirectionSpellings(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	base := time.Now().Add(-10 * 24 * time.Hour).UTC().Truncate(time.Second)

	threadID := insertThread(t, userID)
	oldest := insertRawMessage(t, userID, threadID, "inbound", base)
	insertRawMessage(t, userID, threadID, "incoming", base.Add(24*time.Hour))
	insertRawMessage(t, userID, threadID, "outgoing", base.Add(48*time.Hour))
	newestOut := insertRawMessage(t, userID, threadID, "outbound", base.Add(72*time.Hour))

	withStore(t, func(s store.Store) {
		leadID, _, err := s.CreateLead(ctx, models.Lead{UserID: userID, Email: "bob@other.com", Status: models.LeadWarm})
		if err != nil {
			t.Fatalf("CreateLead() error = %v", err)
		}
		if err := s.LinkThread(ctx, userID, threadID, leadID); err != nil {
			t.Fatalf("LinkThread() error = %v", err)
		}

		ids, err := s.LeadThreadIDs(ctx, userID, leadID)
		if err != nil || len(ids) != 1 || ids[0] != threadID {
			t.Fatalf("LeadThreadIDs() = %v, %v; want [%s]", ids, err, threadID)
		}

		in, err := s.EarliestMessageIn(ctx, userID, ids, models.Inbound)
		if err != nil || in.ID != oldest || in.Direction != models.Inbound {
			t.Errorf("EarliestMessageIn(inbound) = %s %v, %v; want %s", in.ID, in.Direction, err, oldest)
		}
		out, err := s.LatestMessageIn(ctx, userID, ids, models.Outbound)
		if err != nil || out.ID != newestOut || out.Direction != models.Outbound {
			t.Errorf("LatestMessageIn(outbound) = %s %v, %v; want %s", out.ID, out.Direction, err, newestOut)
		}

		if _, err := s.LatestMessageIn(ctx, uuid.New(), ids, models.Outbound); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("LatestMessageIn() for another user error = %v; want ErrNotFound", err)
		}
	})
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	boom := errors.New("abort")

	withStore(t, func(s store.Store) {
		err := s.InTx(ctx, func(tx store.Store) error {
			if _, _, err := tx.CreateLead(ctx, models.Lead{UserID: userID, Email: "carol@other.com", Status: models.LeadWarm}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("InTx() error = %v; want %v", err, boom)
		}
		if _, err := s.FindLeadByEmail(ctx, userID, "carol@other.com"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("FindLeadByEmail() after rollback error = %v; want ErrNotFound", err)
		}

		var leadID uuid.UUID
		err = s.InTx(ctx, func(tx store.Store) error {
			var err error
			leadID, _, err = tx.CreateLead(ctx, models.Lead{UserID: userID, Email: "carol@other.com", Status: models.LeadWarm})
			return err
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
		if got, err := s.GetLead(ctx, userID, leadID); err != nil || got.Email != "carol@other.com" {
			t.Errorf("GetLead() after commit = %+v, %v", got, err)
		}
	})
}

func TestMissingRowsMapToNotFound(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	withStore(t, func(s store.Store) {
		if _, err := s.GetLead(ctx, userID, uuid.New()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetLead() error = %v; want ErrNotFound", err)
		}
		if err := s.LinkThread(ctx, userID, uuid.New(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("LinkThread() error = %v; want ErrNotFound", err)
		}
		if err := s.UpdateLeadRecency(ctx, userID, uuid.New(), models.Recency{}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("UpdateLeadRecency() error = %v; want ErrNotFound", err)
		}
		if _, err := s.LatestMessage(ctx, userID, uuid.New()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("LatestMessage() error = %v; want ErrNotFound", err)
		}
	})
}
