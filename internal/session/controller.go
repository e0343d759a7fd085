// Package session drives the interactive "pick a character, then type the
// text" flow as an explicit state machine keyed by identity.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/state"
	"github.com/google/uuid"
)

// Default step timeouts.
const (
	DefaultCharacterTimeout = 30 * time.Second
	DefaultTextTimeout      = 60 * time.Second
)

// Selector resolves a roster index or a character name.
type Selector interface {
	Select(raw string) (string, bool)
	Names() []string
}

// Outcome is the result of one step of the flow.
type Outcome struct {
	Session domain.Session `json:"session"`
	Prompt  string         `json:"prompt,omitempty"`
	Result  *card.Result   `json:"result,omitempty"`
}

// Controller owns the identity to session map. At most one session exists
// per identity; the map lock is never held while rendering.
type Controller struct {
	mu       sync.Mutex
	sessions map[domain.Identity]*domain.Session

	store     *state.Store
	chars     Selector
	publisher *card.Publisher
	logger    *slog.Logger
	now       func() time.Time

	characterTimeout time.Duration
	textTimeout      time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTimeouts overrides the per-step deadlines.
func WithTimeouts(character, text time.Duration) Option {
	return func(c *Controller) {
		if character > 0 {
			c.characterTimeout = character
		}
		if text > 0 {
			c.textTimeout = text
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller.
func New(store *state.Store, chars Selector, publisher *card.Publisher, opts ...Option) *Controller {
	c := &Controller{
		sessions:         make(map[domain.Identity]*domain.Session),
		store:            store,
		chars:            chars,
		publisher:        publisher,
		logger:           slog.Default(),
		now:              time.Now,
		characterTimeout: DefaultCharacterTimeout,
		textTimeout:      DefaultTextTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a flow for id. A session already running for id is cancelled
// and replaced.
func (c *Controller) Start(_ context.Context, id domain.Identity) (Outcome, error) {
	if err := id.Validate(); err != nil {
		return Outcome{}, err
	}
	now := c.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Identity:  id,
		Step:      domain.StepAwaitingCharacter,
		CreatedAt: now,
		Deadline:  now.Add(c.characterTimeout),
	}

	c.mu.Lock()
	if old, ok := c.sessions[id]; ok {
		old.Step = domain.StepCancelled
		c.logger.Debug("Replacing interactive session",
			"platform", id.Platform,
			"conversation", id.Conversation,
			"old_session", old.ID)
	}
	c.sessions[id] = sess
	out := Outcome{Session: *sess}
	c.mu.Unlock()

	out.Prompt = card.CharacterPrompt(c.chars.Names(), c.characterTimeout)
	return out, nil
}

// Submit feeds user input to the session for id. Invalid input returns a
// *domain.ValidationError and leaves the session where it was. Input after
// the deadline removes the session and returns domain.ErrSessionExpired.
// Completing the flow merges character and text into the stored state,
// then renders and dispatches; a render failure is returned as the error
// alongside the completed outcome.
func (c *Controller) Submit(ctx context.Context, id domain.Identity, input string) (Outcome, error) {
	if err := id.Validate(); err != nil {
		return Outcome{}, err
	}

	c.mu.Lock()
	sess, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return Outcome{}, domain.ErrNoActiveSession
	}

	now := c.now()
	if sess.Expired(now) {
		sess.Step = domain.StepTimedOut
		delete(c.sessions, id)
		out := Outcome{Session: *sess, Prompt: card.ErrorText(domain.ErrSessionExpired)}
		c.mu.Unlock()
		c.logger.Debug("Interactive session timed out", "platform", id.Platform, "conversation", id.Conversation)
		return out, domain.ErrSessionExpired
	}

	switch sess.Step {
	case domain.StepAwaitingCharacter:
		raw := strings.TrimSpace(input)
		name, ok := c.chars.Select(raw)
		if !ok {
			out := Outcome{Session: *sess, Prompt: card.CharacterRetry(raw, len(c.chars.Names()))}
			c.mu.Unlock()
			return out, domain.Invalid("character", "未识别的角色：%s", raw)
		}
		sess.Character = name
		sess.Step = domain.StepAwaitingText
		sess.Deadline = now.Add(c.textTimeout)
		out := Outcome{Session: *sess}
		c.mu.Unlock()
		out.Prompt = card.TextPrompt(name, c.textTimeout, c.store.Limits().MaxTextLength)
		return out, nil

	case domain.StepAwaitingText:
		text, err := c.store.Limits().CheckText(input)
		if err != nil {
			out := Outcome{Session: *sess, Prompt: card.ErrorText(err)}
			c.mu.Unlock()
			return out, err
		}
		sess.Step = domain.StepCompleted
		delete(c.sessions, id)
		done := *sess
		c.mu.Unlock()
		return c.complete(ctx, done, text)
	}

	// Terminal sessions are never left in the map.
	step := sess.Step
	delete(c.sessions, id)
	c.mu.Unlock()
	return Outcome{}, fmt.Errorf("session for %s in terminal step %s: %w", id, step, domain.ErrNoActiveSession)
}

func (c *Controller) complete(ctx context.Context, sess domain.Session, text string) (Outcome, error) {
	limits := c.store.Limits()
	st, _, err := c.store.UpdateOrCreate(ctx, sess.Identity,
		func() domain.RenderState { return limits.NewState(sess.Character) },
		func(st *domain.RenderState) error {
			st.Character = sess.Character
			st.Text = text
			return nil
		})
	if err != nil {
		return Outcome{Session: sess}, fmt.Errorf("merge session result: %w", err)
	}

	c.logger.Info("Interactive session completed",
		"platform", sess.Identity.Platform,
		"conversation", sess.Identity.Conversation,
		"character", sess.Character)

	res := c.publisher.Publish(ctx, sess.Identity, st, card.HeadlineFlowDone)
	return Outcome{Session: sess, Result: &res}, res.RenderErr
}

// Cancel ends the session for id. It reports whether a live session was
// cancelled. Renders already in flight are not affected.
func (c *Controller) Cancel(_ context.Context, id domain.Identity) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok {
		return false, nil
	}
	delete(c.sessions, id)
	if sess.Expired(c.now()) {
		sess.Step = domain.StepTimedOut
		return false, nil
	}
	sess.Step = domain.StepCancelled
	return true, nil
}

// Get returns a copy of the live session for id.
func (c *Controller) Get(id domain.Identity) (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	if sess.Expired(c.now()) {
		sess.Step = domain.StepTimedOut
		delete(c.sessions, id)
		return domain.Session{}, false
	}
	return *sess, true
}

// Len returns the number of sessions in the map, expired ones included
// until the next Sweep.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Sweep times out every session past its deadline and returns them.
func (c *Controller) Sweep() []domain.Session {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []domain.Session
	for id, sess := range c.sessions {
		if sess.Expired(now) {
			sess.Step = domain.StepTimedOut
			delete(c.sessions, id)
			expired = append(expired, *sess)
		}
	}
	return expired
}
