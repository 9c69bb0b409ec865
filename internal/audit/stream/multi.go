package stream

import (
	"context"

	"accessplane/internal/audit/domain"
)

// Multi fans an entry out to several producers. Nil producers are skipped;
// the first emit error is returned after every producer has been tried.
func Multi(producers ...Producer) Producer {
	var live []Producer
	for _, p := range producers {
		if p != nil {
			live = append(live, p)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return multiProducer(live)
}

type multiProducer []Producer

func (m multiProducer) Emit(ctx context.Context, e *domain.Entry) error {
	var firstErr error
	for _, p := range m {
		if err := p.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiProducer) Close() error {
	var firstErr error
	for _, p := range m {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
