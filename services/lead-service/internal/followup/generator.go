package followup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/provider"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

const (
	defaultSubject  = "our conversation"
	maxSnippetRunes = 200
	draftTone       = "professional"
)

// Draft is the persisted follow-up returned to callers.
// Fallback is set when the generated text could not be used.
type Draft struct {
	ID       uuid.UUID `json:"draft_id"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Fallback bool      `json:"fallback"`
}

type Generator struct {
	acquirer store.Acquirer
	llm      provider.Generator
	now      func() time.Time
	policy   *bluemonday.Policy
}

func NewGenerator(acquirer store.Acquirer, llm provider.Generator, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		acquirer: acquirer,
		llm:      llm,
		now:      now,
		policy:   bluemonday.StrictPolicy(),
	}
}

// Generate drafts a follow-up email for the lead and stores it as an
// outbound AI draft. A failing or unusable text generator degrades to a
// fixed template; a missing lead or a failed insert is returned.
func (g *Generator) Generate(ctx context.Context, userID, leadID uuid.UUID) (Draft, error) {
	var draft Draft
	err := g.acquirer.WithStore(ctx, func(s store.Store) error {
		lead, err := s.GetLead(ctx, userID, leadID)
		if err != nil {
			return fmt.Errorf("lead %s: %w", leadID, err)
		}

		pc, threadID, err := g.promptContext(ctx, s, lead)
		if err != nil {
			return err
		}

		subject, body, fallback := g.compose(ctx, pc)

		id, err := s.InsertMessage(ctx, models.Message{
			ID:        uuid.New(),
			UserID:    userID,
			ThreadID:  threadID,
			Direction: models.Outbound,
			To:        lead.Email,
			Subject:   subject,
			BodyText:  body,
			BodyHTML:  g.bodyHTML(body),
			Status:    models.MessageDraft,
			IsAIDraft: true,
			Tone:      draftTone,
			CreatedAt: g.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to save draft: %w", err)
		}

		draft = Draft{ID: id, Subject: subject, Body: body, Fallback: fallback}
		return nil
	})
	return draft, err
}

// promptContext gathers the latest conversation state for the lead.
// The returned thread id is uuid.Nil when the lead has no thread.
func (g *Generator) promptContext(ctx context.Context, s store.Store, lead models.Lead) (PromptContext, uuid.UUID, error) {
	pc := PromptContext{
		RecipientName:      lead.ContactName,
		RecipientEmail:     lead.Email,
		LastSubject:        defaultSubject,
		DaysSinceLastReply: lead.DaysSinceContact,
	}

	thread, err := s.LatestThreadForLead(ctx, lead.UserID, lead.ID)
	if errors.Is(err, store.ErrNotFound) {
		return pc, uuid.Nil, nil
	}
	if err != nil {
		return pc, uuid.Nil, err
	}
	if subject := strings.TrimSpace(thread.Subject); subject != "" {
		pc.LastSubject = subject
	}

	msg, err := s.LatestMessage(ctx, lead.UserID, thread.ID)
	if errors.Is(err, store.ErrNotFound) {
		return pc, thread.ID, nil
	}
	if err != nil {
		return pc, thread.ID, err
	}

	snippet := msg.Snippet
	if strings.TrimSpace(snippet) == "" {
		snippet = msg.BodyText
	}
	pc.LastSnippet = truncate(strings.TrimSpace(snippet), maxSnippetRunes)
	pc.DaysSinceLastReply = models.DaysBetween(msg.EffectiveAt(), g.now())

	return pc, thread.ID, nil
}

// compose asks the text generator for a draft and falls back to the fixed
// template when it errors or returns nothing usable.
func (g *Generator) compose(ctx context.Context, pc PromptContext) (subject, body string, fallback bool) {
	prompt, err := RenderPrompt(pc)
	if err != nil {
		log.Printf("Follow-up prompt for %s failed to render, using fallback: %v", pc.RecipientEmail, err)
		subject, body = Fallback(pc)
		return subject, body, true
	}

	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		log.Printf("Follow-up generation for %s failed, using fallback: %v", pc.RecipientEmail, err)
		subject, body = Fallback(pc)
		return subject, body, true
	}

	subject, body = ParseResponse(text)
	if body == "" {
		log.Printf("Follow-up generation for %s returned no usable body, using fallback", pc.RecipientEmail)
		subject, body = Fallback(pc)
		return subject, body, true
	}
	if subject == "" {
		subject = "Re: " + pc.LastSubject
	}
	return subject, body, false
}

// bodyHTML strips any markup from body and turns newlines into <br>.
func (g *Generator) bodyHTML(body string) string {
	clean := g.policy.Sanitize(body)
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return strings.ReplaceAll(clean, "\n", "<br>")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
