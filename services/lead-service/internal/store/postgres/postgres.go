package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

// querier is satisfied by both *pgxpool.Conn and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool hands out connection-scoped stores from a shared pgxpool.Pool
type Pool struct {
	pool *pgxpool.Pool
}

func NewPool(pool *pgxpool.Pool) *Pool {
	return &Pool{pool: pool}
}

// WithStore acquires one pooled connection for the duration of fn.
// AcquireFunc releases it on every exit path.
func (p *Pool) WithStore(ctx context.Context, fn func(store.Store) error) error {
	return p.pool.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		return fn(&Store{q: conn})
	})
}

// Store implements store.Store with raw SQL over pgx
type Store struct {
	q querier
}

func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	return pgx.BeginFunc(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&Store{q: tx})
	})
}

const threadColumns = `id, user_id, COALESCE(subject, ''), COALESCE(gmail_thread_id, ''), lead_id, status, updated_at`

func scanThread(row pgx.Row) (models.Thread, error) {
	var t models.Thread
	var status string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Subject,
		&t.ConversationID,
		&t.LeadID,
		&status,
		&t.UpdatedAt,
	)
	t.Status = models.ThreadStatus(status)
	return t, err
}

func (s *Store) UnlinkedThreads(ctx context.Context, userID uuid.UUID) ([]models.Thread, error) {
	query := `SELECT ` + threadColumns + `
		FROM email_threads
		WHERE user_id = $1 AND status = $2 AND lead_id IS NULL
		ORDER BY updated_at DESC`

	rows, err := s.q.Query(ctx, query, userID, string(models.ThreadActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked threads: %w", err)
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}

	return threads, rows.Err()
}

func (s *Store) LatestThreadForLead(ctx context.Context, userID, leadID uuid.UUID) (models.Thread, error) {
	query := `SELECT ` + threadColumns + `
		FROM email_threads
		WHERE user_id = $1 AND lead_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`

	t, err := scanThread(s.q.QueryRow(ctx, query, userID, leadID))
	if err != nil {
		return models.Thread{}, notFound(err, "failed to get latest thread")
	}
	return t, nil
}

func (s *Store) LeadThreadIDs(ctx context.Context, userID, leadID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id FROM email_threads WHERE user_id = $1 AND lead_id = $2`,
		userID, leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead threads: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan lead threads: %w", err)
	}
	return ids, nil
}

func (s *Store) LinkThread(ctx context.Context, userID, threadID, leadID uuid.UUID) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE email_threads SET lead_id = $3, updated_at = NOW() WHERE id = $2 AND user_id = $1`,
		userID, threadID, leadID,
	)
	if err != nil {
		return fmt.Errorf("failed to link thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}
	return nil
}

const messageColumns = `id, user_id, thread_id, direction,
	COALESCE(from_email, ''), COALESCE(to_email, ''), COALESCE(subject, ''),
	COALESCE(snippet, ''), COALESCE(body_text, ''), COALESCE(body_html, ''),
	status, is_ai_draft, COALESCE(tone, ''), received_at, sent_at, created_at`

const effectiveAt = `COALESCE(received_at, sent_at, created_at)`

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	var threadID *uuid.UUID
	var direction, status string
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&threadID,
		&direction,
		&m.From,
		&m.To,
		&m.Subject,
		&m.Snippet,
		&m.BodyText,
		&m.BodyHTML,
		&status,
		&m.IsAIDraft,
		&m.Tone,
		&m.ReceivedAt,
		&m.SentAt,
		&m.CreatedAt,
	); err != nil {
		return models.Message{}, err
	}
	if threadID != nil {
		m.ThreadID = *threadID
	}
	m.Status = models.MessageStatus(status)

	dir, err := models.ParseDirection(direction)
	if err != nil {
		return models.Message{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	m.Direction = dir
	return m, nil
}

func (s *Store) LatestMessage(ctx context.Context, userID, threadID uuid.UUID) (models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM emails
		WHERE user_id = $1 AND thread_id = $2
		ORDER BY ` + effectiveAt + ` DESC
		LIMIT 1`

	m, err := scanMessage(s.q.QueryRow(ctx, query, userID, threadID))
	if err != nil {
		return models.Message{}, notFound(err, "failed to get latest message")
	}
	return m, nil
}

func (s *Store) ThreadMessages(ctx context.Context, userID, threadID uuid.UUID) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM emails
		WHERE user_id = $1 AND thread_id = $2
		ORDER BY ` + effectiveAt + ` DESC`

	rows, err := s.q.Query(ctx, query, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (s *Store) LatestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error) {
	return s.edgeMessageIn(ctx, userID, threadIDs, dir, "DESC")
}

func (s *Store) EarliestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error) {
	return s.edgeMessageIn(ctx, userID, threadIDs, dir, "ASC")
}

func (s *Store) edgeMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction, order string) (models.Message, error) {
	if len(threadIDs) == 0 {
		return models.Message{}, store.ErrNotFound
	}

	query := `SELECT ` + messageColumns + `
		FROM emails
		WHERE user_id = $1 AND thread_id = ANY($2) AND direction = ANY($3)
		ORDER BY ` + effectiveAt + ` ` + order + `
		LIMIT 1`

	m, err := scanMessage(s.q.QueryRow(ctx, query, userID, threadIDs, dir.Spellings()))
	if err != nil {
		return models.Message{}, notFound(err, "failed to get "+dir.String()+" message")
	}
	return m, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg models.Message) (uuid.UUID, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	var threadID *uuid.UUID
	if msg.ThreadID != uuid.Nil {
		threadID = &msg.ThreadID
	}

	query := `
		INSERT INTO emails (id, user_id, thread_id, direction, from_email, to_email, subject,
			snippet, body_text, body_html, status, is_ai_draft, tone, received_at, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	var id uuid.UUID
	err := s.q.QueryRow(ctx, query,
		msg.ID,
		msg.UserID,
		threadID,
		msg.Direction.String(),
		msg.From,
		msg.To,
		msg.Subject,
		msg.Snippet,
		msg.BodyText,
		msg.BodyHTML,
		string(msg.Status),
		msg.IsAIDraft,
		msg.Tone,
		msg.ReceivedAt,
		msg.SentAt,
		msg.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

const leadColumns = `id, user_id, email, COALESCE(contact_name, ''), COALESCE(company, ''), status,
	last_contact_at, days_since_contact, metadata, created_at, updated_at`

func scanLead(row pgx.Row) (models.Lead, error) {
	var l models.Lead
	var status string
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Email,
		&l.ContactName,
		&l.Company,
		&status,
		&l.LastContactAt,
		&l.DaysSinceContact,
		&l.Metadata,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	l.Status = models.LeadStatus(status)
	return l, err
}

func (s *Store) GetLead(ctx context.Context, userID, leadID uuid.UUID) (models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND user_id = $2`

	l, err := scanLead(s.q.QueryRow(ctx, query, leadID, userID))
	if err != nil {
		return models.Lead{}, notFound(err, "failed to get lead")
	}
	return l, nil
}

func (s *Store) FindLeadByEmail(ctx context.Context, userID uuid.UUID, email string) (models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE user_id = $1 AND lower(email) = lower($2)`

	l, err := scanLead(s.q.QueryRow(ctx, query, userID, email))
	if err != nil {
		return models.Lead{}, notFound(err, "failed to find lead by email")
	}
	return l, nil
}

func (s *Store) CreateLead(ctx context.Context, lead models.Lead) (uuid.UUID, bool, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Metadata == nil {
		lead.Metadata = map[string]any{}
	}

	// A concurrent run may have inserted the same sender; DO NOTHING keeps
	// the transaction usable and the re-select below picks up that row.
	query := `
		INSERT INTO leads (id, user_id, email, contact_name, company, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, (lower(email))) DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := s.q.QueryRow(ctx, query,
		lead.ID,
		lead.UserID,
		lead.Email,
		lead.ContactName,
		lead.Company,
		string(lead.Status),
		lead.Metadata,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("failed to insert lead: %w", err)
	}

	existing, err := s.FindLeadByEmail(ctx, lead.UserID, lead.Email)
	if err != nil {
		return uuid.Nil, false, err
	}
	return existing.ID, false, nil
}

func (s *Store) UpdateLeadRecency(ctx context.Context, userID, leadID uuid.UUID, r models.Recency) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE leads
		SET last_contact_at = $3, days_since_contact = $4, updated_at = NOW()
		WHERE id = $2 AND user_id = $1`,
		userID, leadID, r.LastContactAt, r.DaysSinceContact,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead recency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", leadID, store.ErrNotFound)
	}
	return nil
}

// notFound maps pgx.ErrNoRows onto store.ErrNotFound and wraps anything else
func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
