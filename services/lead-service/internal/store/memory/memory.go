// Package memory is an in-process store.Store used to exercise the lead
// pipeline without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

// Store keeps threads, messages and leads in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	threads  map[uuid.UUID]models.Thread
	messages map[uuid.UUID]models.Message
	leads    map[uuid.UUID]models.Lead

	// Now stamps updated_at on writes. Defaults to time.Now.
	Now func() time.Time

	// FailHook, when set, is consulted before every operation; a non-nil
	// return is handed back to the caller instead of running it.
	FailHook func(op string, id uuid.UUID) error

	// Acquired and Released count WithStore handles.
	Acquired int
	Released int
}

func New() *Store {
	return &Store{
		threads:  make(map[uuid.UUID]models.Thread),
		messages: make(map[uuid.UUID]models.Message),
		leads:    make(map[uuid.UUID]models.Lead),
		Now:      time.Now,
	}
}

func (s *Store) WithStore(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	s.Acquired++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.Released++
		s.mu.Unlock()
	}()
	return fn(s)
}

// AddThread seeds a thread, assigning an id when missing.
func (s *Store) AddThread(t models.Thread) models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.ThreadActive
	}
	s.threads[t.ID] = t
	return t
}

// AddMessage seeds a message, assigning an id when missing.
func (s *Store) AddMessage(m models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.messages[m.ID] = m
	return m
}

// AddLead seeds a lead, assigning an id when missing.
func (s *Store) AddLead(l models.Lead) models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	s.leads[l.ID] = l
	return l
}

// Thread returns the stored thread by id regardless of owner.
func (s *Store) Thread(id uuid.UUID) (models.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	return t, ok
}

// Message returns the stored message by id regardless of owner.
func (s *Store) Message(id uuid.UUID) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

// Leads returns every lead owned by userID, sorted by email.
func (s *Store) Leads(userID uuid.UUID) []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (s *Store) fail(op string, id uuid.UUID) error {
	if s.FailHook == nil {
		return nil
	}
	return s.FailHook(op, id)
}

func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if err := s.fail("InTx", uuid.Nil); err != nil {
		return err
	}

	s.mu.Lock()
	threads := copyMap(s.threads)
	messages := copyMap(s.messages)
	leads := copyMap(s.leads)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.threads, s.messages, s.leads = threads, messages, leads
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) UnlinkedThreads(ctx context.Context, userID uuid.UUID) ([]models.Thread, error) {
	if err := s.fail("UnlinkedThreads", userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Thread
	for _, t := range s.threads {
		if t.UserID == userID && t.Status == models.ThreadActive && t.LeadID == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) LatestThreadForLead(ctx context.Context, userID, leadID uuid.UUID) (models.Thread, error) {
	if err := s.fail("LatestThreadForLead", leadID); err != nil {
		return models.Thread{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest models.Thread
	found := false
	for _, t := range s.threads {
		if t.UserID != userID || t.LeadID == nil || *t.LeadID != leadID {
			continue
		}
		if !found || t.UpdatedAt.After(latest.UpdatedAt) {
			latest, found = t, true
		}
	}
	if !found {
		return models.Thread{}, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) LeadThreadIDs(ctx context.Context, userID, leadID uuid.UUID) ([]uuid.UUID, error) {
	if err := s.fail("LeadThreadIDs", leadID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, t := range s.threads {
		if t.UserID == userID && t.LeadID != nil && *t.LeadID == leadID {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (s *Store) LinkThread(ctx context.Context, userID, threadID, leadID uuid.UUID) error {
	if err := s.fail("LinkThread", threadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok || t.UserID != userID {
		return fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}
	id := leadID
	t.LeadID = &id
	t.UpdatedAt = s.Now()
	s.threads[threadID] = t
	return nil
}

// threadMessages returns the thread's messages newest first; caller holds mu.
func (s *Store) threadMessages(userID, threadID uuid.UUID) []models.Message {
	var out []models.Message
	for _, m := range s.messages {
		if m.UserID == userID && m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveAt().After(out[j].EffectiveAt()) })
	return out
}

func (s *Store) LatestMessage(ctx context.Context, userID, threadID uuid.UUID) (models.Message, error) {
	if err := s.fail("LatestMessage", threadID); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.threadMessages(userID, threadID)
	if len(msgs) == 0 {
		return models.Message{}, store.ErrNotFound
	}
	return msgs[0], nil
}

func (s *Store) ThreadMessages(ctx context.Context, userID, threadID uuid.UUID) ([]models.Message, error) {
	if err := s.fail("ThreadMessages", threadID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadMessages(userID, threadID), nil
}

func (s *Store) LatestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error) {
	if err := s.fail("LatestMessageIn", userID); err != nil {
		return models.Message{}, err
	}
	return s.edgeMessageIn(userID, threadIDs, dir, func(a, b time.Time) bool { return a.After(b) })
}

func (s *Store) EarliestMessageIn(ctx context.Context, userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction) (models.Message, error) {
	if err := s.fail("EarliestMessageIn", userID); err != nil {
		return models.Message{}, err
	}
	return s.edgeMessageIn(userID, threadIDs, dir, func(a, b time.Time) bool { return a.Before(b) })
}

func (s *Store) edgeMessageIn(userID uuid.UUID, threadIDs []uuid.UUID, dir models.Direction, better func(a, b time.Time) bool) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := make(map[uuid.UUID]bool, len(threadIDs))
	for _, id := range threadIDs {
		in[id] = true
	}

	var best models.Message
	found := false
	for _, m := range s.messages {
		if m.UserID != userID || !in[m.ThreadID] || m.Direction != dir {
			continue
		}
		if !found || better(m.EffectiveAt(), best.EffectiveAt()) {
			best, found = m, true
		}
	}
	if !found {
		return models.Message{}, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg models.Message) (uuid.UUID, error) {
	if err := s.fail("InsertMessage", msg.ThreadID); err != nil {
		return uuid.Nil, err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	return msg.ID, nil
}

func (s *Store) GetLead(ctx context.Context, userID, leadID uuid.UUID) (models.Lead, error) {
	if err := s.fail("GetLead", leadID); err != nil {
		return models.Lead{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[leadID]
	if !ok || l.UserID != userID {
		return models.Lead{}, store.ErrNotFound
	}
	return l, nil
}

func (s *Store) FindLeadByEmail(ctx context.Context, userID uuid.UUID, email string) (models.Lead, error) {
	if err := s.fail("FindLeadByEmail", userID); err != nil {
		return models.Lead{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLead(userID, email)
}

func (s *Store) findLead(userID uuid.UUID, email string) (models.Lead, error) {
	for _, l := range s.leads {
		if l.UserID == userID && strings.EqualFold(l.Email, email) {
			return l, nil
		}
	}
	return models.Lead{}, store.ErrNotFound
}

func (s *Store) CreateLead(ctx context.Context, lead models.Lead) (uuid.UUID, bool, error) {
	if err := s.fail("CreateLead", lead.UserID); err != nil {
		return uuid.Nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.findLead(lead.UserID, lead.Email); err == nil {
		return existing.ID, false, nil
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := s.Now()
	lead.CreatedAt, lead.UpdatedAt = now, now
	if lead.Metadata == nil {
		lead.Metadata = map[string]any{}
	}
	s.leads[lead.ID] = lead
	return lead.ID, true, nil
}

func (s *Store) UpdateLeadRecency(ctx context.Context, userID, leadID uuid.UUID, r models.Recency) error {
	if err := s.fail("UpdateLeadRecency", leadID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[leadID]
	if !ok || l.UserID != userID {
		return fmt.Errorf("lead %s: %w", leadID, store.ErrNotFound)
	}
	l.LastContactAt = r.LastContactAt
	l.DaysSinceContact = r.DaysSinceContact
	l.UpdatedAt = s.Now()
	s.leads[leadID] = l
	return nil
}
