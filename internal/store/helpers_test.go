package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errDiskFull = errors.New("disk full")

// memDocs хранит документы в памяти с управляемым отказом записи.
type memDocs struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failSave bool
	saves    int
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string][]byte)}
}

func (m *memDocs) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *memDocs) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.Join(domain.ErrStorageIO, errDiskFull)
	}
	m.saves++
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memDocs) setFailSave(fail bool) {
	m.mu.Lock()
	m.failSave = fail
	m.mu.Unlock()
}

func (m *memDocs) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memDocs) raw(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[name])
}

// recorder собирает опубликованные события.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sampleProduct(code string) domain.Product {
	price := 200.0
	stock := 25
	p, err := domain.NewProduct(domain.ProductInput{
		Title:       "producto prueba",
		Description: "Este es un producto prueba",
		Code:        code,
		Price:       &price,
		Stock:       &stock,
		Category:    "c1",
	})
	if err != nil {
		panic(err)
	}
	return p
}
