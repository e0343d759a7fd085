package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Discard drops every message.
var Discard domain.Dispatcher = domain.DispatcherFunc(func(context.Context, domain.Identity, domain.Message) error {
	return nil
})

// MultiDispatcher fans a message out to several dispatchers. Every target is
// tried; errors are joined.
type MultiDispatcher []domain.Dispatcher

// Dispatch implements domain.Dispatcher.
func (m MultiDispatcher) Dispatch(ctx context.Context, id domain.Identity, msg domain.Message) error {
	var errs []error
	for i, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, id, msg); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
