package domain

import "context"

// Renderer turns a finished configuration into image bytes. It is the only
// component aware of visual layout.
type Renderer interface {
	Render(ctx context.Context, state RenderState) ([]byte, error)
}

// Message is what the engine hands to a dispatcher: a plain-text summary and
// optional PNG bytes.
type Message struct {
	Text  string
	Image []byte
}

// Dispatcher delivers a message back to the user behind an identity.
type Dispatcher interface {
	Dispatch(ctx context.Context, id Identity, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, id Identity, msg Message) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, id Identity, msg Message) error {
	return f(ctx, id, msg)
}

// Resolver maps free-text input to a canonical character name.
type Resolver interface {
	Resolve(raw string) (string, bool)
}
