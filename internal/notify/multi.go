package notify

import (
	"context"
	"errors"

	"github.com/sekia-ai/calremind/internal/reminder"
)

// Multi fans a notification out to every presenter. A failing presenter
// does not stop the others.
type Multi []reminder.Presenter

func (m Multi) Show(ctx context.Context, n reminder.Notification) error {
	var errs []error
	for _, p := range m {
		if err := p.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
