package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TopicStoreEvents: топик по умолчанию для событий каталога и корзин.
const TopicStoreEvents = "storefront.store.events"

// Kafka headers событий
const (
	HeaderEventID   = "x-event-id"
	HeaderEventType = "x-event-type"
	HeaderOrigin    = "x-origin"
)

// Envelope задаёт формат сообщения о мутации хранилища в Kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Origin        string          `json:"origin,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope упаковывает доменное событие, назначая ему уникальный event_id.
func NewEnvelope(event domain.Event, origin string) (*Envelope, error) {
	env := &Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(event.Type),
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		OccurredAt:    event.OccurredAt,
		Origin:        origin,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	if event.Payload != nil {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		env.Payload = payload
	}
	return env, nil
}

// Key возвращает ключ партиционирования: все события одной сущности попадают в одну партицию по порядку.
func (e *Envelope) Key() string {
	return e.AggregateType + "-" + strconv.FormatInt(e.AggregateID, 10)
}

// Event восстанавливает доменное событие; Payload остаётся сырым JSON.
func (e *Envelope) Event() domain.Event {
	ev := domain.Event{
		Type:          domain.EventType(e.EventType),
		AggregateType: domain.AggregateType(e.AggregateType),
		AggregateID:   e.AggregateID,
		OccurredAt:    e.OccurredAt,
	}
	if len(e.Payload) > 0 {
		ev.Payload = e.Payload
	}
	return ev
}
