package events

import (
	"context"
	"errors"

	"sak/pkg/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.KYCStatusEvent) error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
