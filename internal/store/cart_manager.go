package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/codec"
	"github.com/vladislavdragonenkov/storefront/internal/storage/file"
)

// CartManager владеет коллекцией корзин и их позициями.
// Все изменения корзин проходят через менеджер и сохраняются до возврата из метода.
// События доставляются в порядке фиксации, как у ProductManager.
type CartManager struct {
	mu        sync.RWMutex
	publishMu sync.Mutex
	docs      domain.DocumentStore
	name      string
	lastID    int64
	carts     []*domain.Cart
	opts      options
	closer    func() error
}

// NewCartManager открывает файловое хранилище корзин. Пустой path заменяется на DefaultCartsFile.
func NewCartManager(ctx context.Context, path string, opts ...Option) (*CartManager, error) {
	if path == "" {
		path = DefaultCartsFile
	}
	backend := file.NewBackend()
	m, err := OpenCartManager(ctx, backend, path, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	m.closer = backend.Close
	return m, nil
}

// OpenCartManager загружает корзины из произвольного DocumentStore.
func OpenCartManager(ctx context.Context, docs domain.DocumentStore, name string, opts ...Option) (_ *CartManager, err error) {
	release, err := claimDocument(docs, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	m := &CartManager{
		docs:   docs,
		name:   name,
		opts:   buildOptions("cart-manager", opts),
		closer: func() error { release(); return nil },
	}

	data, err := docs.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load carts %s: %w", name, err)
	}
	state, err := codec.DecodeCarts(data, m.opts.clock)
	if err != nil {
		m.opts.logger.WithError(err).WithField("document", name).Error("carts document is corrupted")
		return nil, fmt.Errorf("load carts %s: %w", name, err)
	}

	if data == nil {
		if err := m.persist(ctx, state); err != nil {
			return nil, err
		}
	}
	m.lastID = state.LastID
	m.carts = state.Carts
	m.opts.metrics.SetState(storeCarts, len(m.carts), m.lastID)

	m.opts.logger.WithFields(log.Fields{
		"document": name,
		"carts":    len(m.carts),
		"last_id":  m.lastID,
	}).Info("cart manager loaded")
	return m, nil
}

// Close освобождает документ хранилища.
func (m *CartManager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Path возвращает имя документа хранилища.
func (m *CartManager) Path() string { return m.name }

// LastID возвращает наибольший когда-либо выданный id корзины.
func (m *CartManager) LastID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastID
}

// PeekNextID возвращает id следующей корзины, не изменяя состояние.
func (m *CartManager) PeekNextID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastID + 1
}

// Count возвращает число корзин.
func (m *CartManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.carts)
}

// AddCart создаёт пустую корзину и возвращает её id.
func (m *CartManager) AddCart(ctx context.Context) (id int64, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "add", err) }()

	cart, err := m.addLocked(ctx)
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, m.cartEvent(domain.EventCartCreated, cart))
	return cart.ID(), nil
}

func (m *CartManager) addLocked(ctx context.Context) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cart, err := domain.NewCart(m.lastID+1, m.opts.clock)
	if err != nil {
		return nil, err
	}
	next := codec.CartState{
		LastID: cart.ID(),
		Carts:  append(m.snapshotCarts(), cart),
	}
	if err := m.commit(ctx, next); err != nil {
		return nil, err
	}
	m.publishMu.Lock()
	return cart.Clone(), nil
}

// CartByID возвращает копию корзины или ErrNotFound.
func (m *CartManager) CartByID(ctx context.Context, id int64) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexByID(id)
	if idx < 0 {
		return nil, cartNotFound(id)
	}
	return m.carts[idx].Clone(), nil
}

// Carts возвращает страницу корзин в порядке создания.
func (m *CartManager) Carts(ctx context.Context, limit, offset int) ([]*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end, err := pageBounds(len(m.carts), limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Cart, 0, end-start)
	for _, c := range m.carts[start:end] {
		out = append(out, c.Clone())
	}
	return out, nil
}

// CartItems возвращает страницу позиций корзины. Offset за последней позицией даёт пустую страницу.
func (m *CartManager) CartItems(ctx context.Context, cartID int64, limit, offset int) ([]domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexByID(cartID)
	if idx < 0 {
		return nil, cartNotFound(cartID)
	}
	return m.carts[idx].Items(limit, offset)
}

// AddItem добавляет позицию в корзину. Повторное добавление товара суммирует количество.
// Возвращает итоговое количество товара в корзине.
func (m *CartManager) AddItem(ctx context.Context, cartID int64, item domain.CartItem) (quantity int, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "add_item", err) }()

	updated, err := m.mutate(ctx, cartID, func(c *domain.Cart) error {
		var addErr error
		quantity, addErr = c.AddItem(item)
		return addErr
	})
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, m.cartEvent(domain.EventCartUpdated, updated))
	return quantity, nil
}

// UpdateItemQuantity задаёт количество позиции. Количество <= 0 удаляет позицию.
func (m *CartManager) UpdateItemQuantity(ctx context.Context, cartID, productID int64, quantity int) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "update_quantity", err) }()

	return m.mutateAndPublish(ctx, cartID, func(c *domain.Cart) error {
		return c.UpdateItemQuantity(productID, quantity)
	})
}

// UpdateItemSalesPrice меняет зафиксированную цену позиции.
func (m *CartManager) UpdateItemSalesPrice(ctx context.Context, cartID, productID int64, price float64) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "update_price", err) }()

	return m.mutateAndPublish(ctx, cartID, func(c *domain.Cart) error {
		return c.UpdateItemSalesPrice(productID, price)
	})
}

// ItemUpdate описывает изменение позиции; nil-поля не меняются.
type ItemUpdate struct {
	Quantity   *int
	SalesPrice *float64
}

// UpdateItem применяет цену и количество позиции одной мутацией: либо сохраняются оба
// изменения, либо ни одного. Количество <= 0 удаляет позицию.
func (m *CartManager) UpdateItem(ctx context.Context, cartID, productID int64, update ItemUpdate) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "update_item", err) }()

	if update.Quantity == nil && update.SalesPrice == nil {
		return &domain.FieldError{Field: "quantity", Reason: "or salesPrice is mandatory"}
	}
	return m.mutateAndPublish(ctx, cartID, func(c *domain.Cart) error {
		if update.SalesPrice != nil {
			if err := c.UpdateItemSalesPrice(productID, *update.SalesPrice); err != nil {
				return err
			}
		}
		if update.Quantity != nil {
			return c.UpdateItemQuantity(productID, *update.Quantity)
		}
		return nil
	})
}

// RemoveItem удаляет позицию из корзины.
func (m *CartManager) RemoveItem(ctx context.Context, cartID, productID int64) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "remove_item", err) }()

	return m.mutateAndPublish(ctx, cartID, func(c *domain.Cart) error {
		return c.RemoveItem(productID)
	})
}

// ClearCart удаляет все позиции корзины.
func (m *CartManager) ClearCart(ctx context.Context, cartID int64) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "clear", err) }()

	return m.mutateAndPublish(ctx, cartID, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
}

// DeleteCart удаляет пустую корзину и возвращает число оставшихся.
// Корзина с позициями не удаляется: ErrCartNotEmpty.
func (m *CartManager) DeleteCart(ctx context.Context, id int64) (remaining int, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeCarts, "delete", err) }()

	remaining, err = m.deleteLocked(ctx, id)
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, domain.Event{
		Type:          domain.EventCartDeleted,
		AggregateType: domain.AggregateCart,
		AggregateID:   id,
		OccurredAt:    m.opts.clock(),
	})
	return remaining, nil
}

func (m *CartManager) deleteLocked(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx := m.indexByID(id)
	if idx < 0 {
		return 0, cartNotFound(id)
	}
	if !m.carts[idx].IsEmpty() {
		return 0, fmt.Errorf("%w: cart %d has %d items", domain.ErrCartNotEmpty, id, m.carts[idx].Len())
	}

	current := m.snapshotCarts()
	next := codec.CartState{
		LastID: m.lastID,
		Carts:  append(current[:idx:idx], current[idx+1:]...),
	}
	if err := m.commit(ctx, next); err != nil {
		return 0, err
	}
	m.publishMu.Lock()
	return len(m.carts), nil
}

func (m *CartManager) mutateAndPublish(ctx context.Context, cartID int64, fn func(*domain.Cart) error) error {
	updated, err := m.mutate(ctx, cartID, fn)
	if err != nil {
		return err
	}
	m.publishHeld(ctx, m.cartEvent(domain.EventCartUpdated, updated))
	return nil
}

// mutate применяет fn к копии корзины и фиксирует результат.
// При ошибке fn или записи текущая корзина не меняется.
func (m *CartManager) mutate(ctx context.Context, cartID int64, fn func(*domain.Cart) error) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := m.indexByID(cartID)
	if idx < 0 {
		return nil, cartNotFound(cartID)
	}

	next := m.snapshotCarts()
	next[idx] = next[idx].Clone()
	if err := fn(next[idx]); err != nil {
		return nil, err
	}
	if err := m.commit(ctx, codec.CartState{LastID: m.lastID, Carts: next}); err != nil {
		return nil, err
	}
	m.publishMu.Lock()
	return m.carts[idx].Clone(), nil
}

// publishHeld публикует событие и отпускает publishMu, захваченный под mu.
func (m *CartManager) publishHeld(ctx context.Context, event domain.Event) {
	defer m.publishMu.Unlock()
	m.opts.publish(ctx, event)
}

// commit вызывается под m.mu.
func (m *CartManager) commit(ctx context.Context, next codec.CartState) error {
	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.lastID = next.LastID
	m.carts = next.Carts
	m.opts.metrics.SetState(storeCarts, len(m.carts), m.lastID)
	m.opts.logger.WithFields(log.Fields{
		"carts":   len(m.carts),
		"last_id": m.lastID,
	}).Debug("carts state committed")
	return nil
}

func (m *CartManager) persist(ctx context.Context, state codec.CartState) error {
	data, err := codec.EncodeCarts(state)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, err)
	}

	start := time.Now()
	err = m.docs.Save(ctx, m.name, data)
	m.opts.metrics.ObservePersist(storeCarts, time.Since(start))
	if err != nil {
		m.opts.logger.WithError(err).WithField("document", m.name).Error("failed to persist carts, state rolled back")
		return fmt.Errorf("persist carts %s: %w", m.name, err)
	}
	return nil
}

// snapshotCarts копирует срез указателей. Изменяемую корзину mutate клонирует отдельно,
// остальные агрегаты разделяются между состояниями и не меняются на месте.
func (m *CartManager) snapshotCarts() []*domain.Cart {
	out := make([]*domain.Cart, 0, len(m.carts)+1)
	return append(out, m.carts...)
}

func (m *CartManager) indexByID(id int64) int {
	for idx, c := range m.carts {
		if c.ID() == id {
			return idx
		}
	}
	return -1
}

func (m *CartManager) cartEvent(eventType domain.EventType, c *domain.Cart) domain.Event {
	return domain.Event{
		Type:          eventType,
		AggregateType: domain.AggregateCart,
		AggregateID:   c.ID(),
		OccurredAt:    m.opts.clock(),
		Payload:       c.View(),
	}
}

func cartNotFound(id int64) error {
	return fmt.Errorf("%w: cart with id %d was not found", domain.ErrNotFound, id)
}
