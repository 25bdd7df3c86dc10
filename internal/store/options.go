// Package store содержит ProductManager и CartManager, владельцев коллекций,
// идентичности и персистентности товаров и корзин.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// DefaultProductsFile задаёт файл ProductManager по умолчанию в рабочем каталоге.
	DefaultProductsFile = "ProductManager.json"
	// DefaultCartsFile задаёт файл CartManager по умолчанию в рабочем каталоге.
	DefaultCartsFile = "CartManager.json"

	storeProducts = "products"
	storeCarts    = "carts"
)

type options struct {
	logger    *log.Entry
	metrics   *metrics.StoreMetrics
	publisher domain.EventPublisher
	clock     func() time.Time
}

// Option настраивает менеджер хранилища.
type Option func(*options)

// WithLogger задаёт logger менеджера.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics задаёт prometheus-метрики менеджера.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPublisher задаёт получателя событий о зафиксированных мутациях.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", component)
	}
	if o.clock == nil {
		o.clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// publish отправляет событие после фиксации мутации. Ошибка доставки не отменяет мутацию.
func (o options) publish(ctx context.Context, event domain.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type":   event.Type,
			"aggregate_id": event.AggregateID,
		}).Warn("failed to publish store event")
	}
}

// pageBounds вычисляет срез [start:end) страницы коллекции длины length.
// limit=0 снимает ограничение; offset за пределами коллекции даёт ErrNotFound.
// Пустая коллекция с offset=0 даёт пустую страницу.
func pageBounds(length, limit, offset int) (int, int, error) {
	if limit < 0 {
		return 0, 0, &domain.FieldError{Field: "limit", Reason: "must have a value equal or greater than 0 (zero)", Range: true}
	}
	if offset < 0 {
		return 0, 0, &domain.FieldError{Field: "offset", Reason: "must have a value equal or greater than 0 (zero)", Range: true}
	}
	if offset >= length {
		if length == 0 && offset == 0 {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: offset %d is out of bounds (%d elements)", domain.ErrNotFound, offset, length)
	}
	end := length
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return offset, end, nil
}

// claimDocument закрепляет документ, если backend это поддерживает,
// и возвращает функцию освобождения.
func claimDocument(docs domain.DocumentStore, name string) (func(), error) {
	claimer, ok := docs.(domain.DocumentClaimer)
	if !ok {
		return func() {}, nil
	}
	if err := claimer.Claim(name); err != nil {
		return nil, fmt.Errorf("claim document %s: %w", name, err)
	}
	var once sync.Once
	return func() { once.Do(func() { claimer.Release(name) }) }, nil
}
