package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/character"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/session"
)

// Reply is what a chat transport should send back. Text is empty when the
// card result was already dispatched by the publisher.
type Reply struct {
	Text    string          `json:"text,omitempty"`
	Result  *card.Result    `json:"result,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
	Handled bool            `json:"handled"`
}

// Handler executes parsed chat lines against the engine, the session
// controller and the character catalog.
type Handler struct {
	parser   *Parser
	engine   *adjust.Engine
	sessions *session.Controller
	catalog  *character.Catalog
	logger   *slog.Logger
}

// NewHandler creates a Handler for commands starting with prefix.
func NewHandler(prefix string, engine *adjust.Engine, sessions *session.Controller, catalog *character.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		parser:   NewParser(prefix),
		engine:   engine,
		sessions: sessions,
		catalog:  catalog,
		logger:   logger,
	}
}

// Handle runs one chat line for id. Plain text without a running session
// is not handled. The returned error is the engine error, if any; Reply.Text
// already carries its user-facing rendering.
func (h *Handler) Handle(ctx context.Context, id domain.Identity, line string) (Reply, error) {
	cmd, err := h.parser.Parse(line)
	if err != nil {
		return Reply{Text: card.ErrorText(err), Handled: true}, err
	}

	switch cmd.Kind {
	case KindInput:
		out, err := h.sessions.Submit(ctx, id, cmd.Text)
		if errors.Is(err, domain.ErrNoActiveSession) {
			return Reply{}, nil
		}
		return h.sessionReply(out, err)

	case KindStart:
		out, err := h.sessions.Start(ctx, id)
		return h.sessionReply(out, err)

	case KindCancel:
		cancelled, err := h.sessions.Cancel(ctx, id)
		if err != nil {
			return Reply{Text: card.ErrorText(err), Handled: true}, err
		}
		if !cancelled {
			return Reply{Text: card.ErrorText(domain.ErrNoActiveSession), Handled: true}, nil
		}
		return Reply{Text: card.Cancelled, Handled: true}, nil

	case KindList:
		return Reply{Text: character.FormatList(h.catalog), Handled: true}, nil

	case KindGroups:
		return Reply{Text: character.FormatGroups(h.catalog), Handled: true}, nil

	case KindDetail:
		name := strings.TrimSpace(cmd.Text)
		if name == "" {
			return Reply{Text: character.FormatList(h.catalog), Handled: true}, nil
		}
		entry, ok := h.catalog.Detail(name)
		if !ok {
			err := domain.Invalid("character", "未识别的角色：%s", name)
			return Reply{Text: card.ErrorText(err), Handled: true}, err
		}
		return Reply{Text: character.FormatDetail(entry), Handled: true}, nil

	case KindGuide:
		return Reply{Text: card.Guidance(), Handled: true}, nil

	case KindDraw:
		res, err := h.engine.Draw(ctx, id, cmd.Text)
		return h.cardReply(res, err)

	case KindAdjust:
		res, err := h.engine.Apply(ctx, id, cmd.Request)
		return h.cardReply(res, err)
	}
	return Reply{}, nil
}

func (h *Handler) cardReply(res card.Result, err error) (Reply, error) {
	if err != nil && !errors.Is(err, domain.ErrRenderFailed) {
		return Reply{Text: card.ErrorText(err), Handled: true}, err
	}
	// Render failures are reported inside the dispatched summary.
	return Reply{Result: &res, Handled: true}, err
}

func (h *Handler) sessionReply(out session.Outcome, err error) (Reply, error) {
	reply := Reply{Text: out.Prompt, Result: out.Result, Handled: true}
	if out.Session.ID != "" {
		s := out.Session
		reply.Session = &s
	}
	if err != nil && out.Result == nil && reply.Text == "" {
		reply.Text = card.ErrorText(err)
	}
	if err != nil && !domain.IsValidation(err) {
		h.logger.Debug("Session step failed", "error", err)
	}
	return reply, err
}
