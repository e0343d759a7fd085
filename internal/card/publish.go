package card

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Result is what a successful mutation hands back to the command layer.
// RenderErr is set when the configuration was saved but rendering failed.
type Result struct {
	State       domain.RenderState `json:"state"`
	Headline    string             `json:"headline"`
	Summary     string             `json:"summary"`
	Image       []byte             `json:"-"`
	RenderErr   error              `json:"-"`
	DispatchErr error              `json:"-"`
}

// Err returns the render error, if any.
func (r *Result) Err() error {
	return r.RenderErr
}

// Publisher renders a saved configuration and delivers it. It never holds
// any state lock; callers pass a copy.
type Publisher struct {
	renderer   domain.Renderer
	dispatcher domain.Dispatcher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPublisher creates a publisher. A nil dispatcher discards messages.
func NewPublisher(renderer domain.Renderer, dispatcher domain.Dispatcher, timeout time.Duration, logger *slog.Logger) *Publisher {
	if dispatcher == nil {
		dispatcher = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{renderer: renderer, dispatcher: dispatcher, timeout: timeout, logger: logger}
}

// Publish renders st, builds the summary and dispatches both to id.
// A render failure does not stop the summary from being delivered.
func (p *Publisher) Publish(ctx context.Context, id domain.Identity, st domain.RenderState, headline string) Result {
	res := Result{State: st, Headline: headline, Summary: Summary(st, headline)}

	img, err := p.render(ctx, st)
	if err != nil {
		res.RenderErr = err
		p.logger.Warn("Card render failed",
			"platform", id.Platform,
			"conversation", id.Conversation,
			"error", err)
	}
	res.Image = img

	text := res.Summary
	if res.RenderErr != nil {
		text = text + "\n\n" + ErrorText(res.RenderErr)
	}
	if err := p.dispatcher.Dispatch(ctx, id, domain.Message{Text: text, Image: img}); err != nil {
		res.DispatchErr = err
		p.logger.Warn("Card dispatch failed",
			"platform", id.Platform,
			"conversation", id.Conversation,
			"error", err)
	}
	return res
}

// Notify dispatches a text-only message.
func (p *Publisher) Notify(ctx context.Context, id domain.Identity, text string) error {
	return p.dispatcher.Dispatch(ctx, id, domain.Message{Text: text})
}

func (p *Publisher) render(ctx context.Context, st domain.RenderState) ([]byte, error) {
	if p.renderer == nil {
		return nil, &domain.RenderError{Err: errors.New("no renderer configured")}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	img, err := p.renderer.Render(ctx, st)
	if err != nil {
		var re *domain.RenderError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &domain.RenderError{Err: err}
	}
	return img, nil
}
