package domain

import (
	"context"
	"time"
)

// DocumentStore хранит именованные документы состояния хранилищ целиком.
type DocumentStore interface {
	// Load возвращает содержимое документа или (nil, nil), если документа ещё нет.
	Load(ctx context.Context, name string) ([]byte, error)
	// Save атомарно заменяет документ: читатель видит либо старую, либо новую версию.
	Save(ctx context.Context, name string, data []byte) error
}

// DocumentClaimer закрепляет документ за одним владельцем. Повторный захват
// документа, пока он не освобождён, возвращает ErrStorageInUse.
type DocumentClaimer interface {
	Claim(name string) error
	Release(name string)
}

// EventPublisher доставляет события об изменениях каталога и корзин.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventType — тип доменного события.
type EventType string

const (
	EventProductCreated EventType = "product.created"
	EventProductUpdated EventType = "product.updated"
	EventProductDeleted EventType = "product.deleted"
	EventCartCreated    EventType = "cart.created"
	EventCartUpdated    EventType = "cart.updated"
	EventCartDeleted    EventType = "cart.deleted"
)

// AggregateType задаёт тип сущности, к которой относится событие.
type AggregateType string

const (
	AggregateProduct AggregateType = "product"
	AggregateCart    AggregateType = "cart"
)

// Event описывает зафиксированную мутацию хранилища.
type Event struct {
	Type          EventType
	AggregateType AggregateType
	AggregateID   int64
	OccurredAt    time.Time
	// Payload несёт состояние сущности после мутации (ProductView/CartView); nil для удаления.
	Payload any
}

// EventPublisherFunc адаптирует функцию к EventPublisher.
type EventPublisherFunc func(ctx context.Context, event Event) error

func (f EventPublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
