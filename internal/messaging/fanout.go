// Package messaging доставляет события хранилищ во внешние получатели.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Sink — именованный получатель событий.
type Sink struct {
	Name      string
	Publisher domain.EventPublisher
}

// Fanout рассылает каждое событие во все sinks. Отказ одного sink не мешает остальным.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.StoreMetrics
}

// NewFanout создаёт рассыльщик; sinks с nil Publisher пропускаются.
func NewFanout(m *metrics.StoreMetrics, sinks ...Sink) *Fanout {
	f := &Fanout{metrics: m}
	for _, s := range sinks {
		if s.Publisher != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len возвращает число подключённых sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish реализует domain.EventPublisher и возвращает объединённую ошибку отказавших sinks.
func (f *Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Publisher.Publish(ctx, event)
		f.metrics.RecordEventPublished(s.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventPublisher = (*Fanout)(nil)
