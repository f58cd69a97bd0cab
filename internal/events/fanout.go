package events

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Fanout delivers each event to every sink and joins their errors.
type Fanout []quiz.Publisher

func (f Fanout) Publish(ctx context.Context, e quiz.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
