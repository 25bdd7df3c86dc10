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

// ProductManager владеет коллекцией товаров: назначает идентификаторы,
// следит за уникальностью code и сохраняет весь документ после каждой мутации.
//
// Мутации сериализуются мьютексом и выполняются по схеме
// validate → build next state → persist → swap. Если запись не удалась,
// состояние в памяти остаётся прежним.
//
// События доставляются в порядке фиксации: мутация захватывает publishMu
// до освобождения mu и отпускает его после публикации.
type ProductManager struct {
	mu        sync.RWMutex
	publishMu sync.Mutex
	docs     domain.DocumentStore
	name     string
	lastID   int64
	products []domain.Product
	opts     options
	closer   func() error
}

// NewProductManager открывает файловое хранилище товаров. Пустой path заменяется на DefaultProductsFile.
// Файл закрепляется за менеджером до вызова Close.
func NewProductManager(ctx context.Context, path string, opts ...Option) (*ProductManager, error) {
	if path == "" {
		path = DefaultProductsFile
	}
	backend := file.NewBackend()
	m, err := OpenProductManager(ctx, backend, path, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	m.closer = backend.Close
	return m, nil
}

// OpenProductManager загружает состояние из произвольного DocumentStore.
// Если документа нет, сразу сохраняет пустое состояние. Если docs реализует
// domain.DocumentClaimer, документ закрепляется за менеджером до Close.
func OpenProductManager(ctx context.Context, docs domain.DocumentStore, name string, opts ...Option) (_ *ProductManager, err error) {
	release, err := claimDocument(docs, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	m := &ProductManager{
		docs:   docs,
		name:   name,
		opts:   buildOptions("product-manager", opts),
		closer: func() error { release(); return nil },
	}

	data, err := docs.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load products %s: %w", name, err)
	}
	state, err := codec.DecodeProducts(data)
	if err != nil {
		m.opts.logger.WithError(err).WithField("document", name).Error("products document is corrupted")
		return nil, fmt.Errorf("load products %s: %w", name, err)
	}

	if data == nil {
		if err := m.persist(ctx, state); err != nil {
			return nil, err
		}
	}
	m.lastID = state.LastID
	m.products = state.Products
	m.opts.metrics.SetState(storeProducts, len(m.products), m.lastID)

	m.opts.logger.WithFields(log.Fields{
		"document": name,
		"products": len(m.products),
		"last_id":  m.lastID,
	}).Info("product manager loaded")
	return m, nil
}

// Close освобождает документ хранилища. Сбрасывать нечего: каждая мутация уже сохранена.
func (m *ProductManager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Path возвращает имя документа хранилища.
func (m *ProductManager) Path() string { return m.name }

// LastID возвращает high-water mark, то есть наибольший когда-либо выданный id.
func (m *ProductManager) LastID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastID
}

// PeekNextID возвращает id, который получит следующий добавленный товар, не изменяя состояние.
func (m *ProductManager) PeekNextID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastID + 1
}

// Count возвращает число товаров.
func (m *ProductManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}

// AddProduct добавляет товар, назначает ему id = lastID+1 и возвращает этот id.
func (m *ProductManager) AddProduct(ctx context.Context, p domain.Product) (id int64, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "add", err) }()

	// Повторная валидация: товар мог быть собран литералом в обход NewProduct.
	validated, err := domain.NewProduct(p.Input())
	if err != nil {
		return 0, err
	}

	added, err := m.addLocked(ctx, validated)
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, m.productEvent(domain.EventProductCreated, added))
	return added.ID, nil
}

func (m *ProductManager) addLocked(ctx context.Context, p domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if m.indexByCode(p.Code) >= 0 {
		return domain.Product{}, fmt.Errorf("%w: there is already a product with code %s", domain.ErrDuplicateKey, p.Code)
	}

	p.ID = m.lastID + 1
	next := codec.ProductState{
		LastID:   p.ID,
		Products: append(m.snapshotProducts(), p),
	}
	if err := m.commit(ctx, next); err != nil {
		return domain.Product{}, err
	}
	m.publishMu.Lock()
	return p.Clone(), nil
}

// ProductByID возвращает копию товара или ErrNotFound.
func (m *ProductManager) ProductByID(ctx context.Context, id int64) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.indexByID(id)
	if idx < 0 {
		return domain.Product{}, productNotFound(id)
	}
	return m.products[idx].Clone(), nil
}

// ProductByCode ищет товар по SKU без учёта регистра и пробелов по краям.
func (m *ProductManager) ProductByCode(ctx context.Context, code string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := domain.NormalizeCode(code)
	idx := m.indexByCode(normalized)
	if idx < 0 {
		return domain.Product{}, fmt.Errorf("%w: product with code %s was not found", domain.ErrNotFound, normalized)
	}
	return m.products[idx].Clone(), nil
}

// Products возвращает страницу товаров в порядке добавления. limit=0 читает до конца коллекции.
func (m *ProductManager) Products(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end, err := pageBounds(len(m.products), limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, end-start)
	for _, p := range m.products[start:end] {
		out = append(out, p.Clone())
	}
	return out, nil
}

// UpdateProduct заменяет все поля товара, кроме id.
func (m *ProductManager) UpdateProduct(ctx context.Context, id int64, in domain.ProductInput) (ok bool, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "update", err) }()

	replacement, err := domain.NewProduct(in)
	if err != nil {
		return false, err
	}
	updated, err := m.mutate(ctx, id, func(p *domain.Product) error {
		replacement.ID = p.ID
		*p = replacement
		return nil
	})
	if err != nil {
		return false, err
	}
	m.publishHeld(ctx, m.productEvent(domain.EventProductUpdated, updated))
	return true, nil
}

// AddThumbnails добавляет изображения товару и возвращает их новое количество.
func (m *ProductManager) AddThumbnails(ctx context.Context, id int64, uris ...string) (n int, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "add_thumbnails", err) }()

	updated, err := m.mutate(ctx, id, func(p *domain.Product) error {
		var addErr error
		n, addErr = p.AddThumbnails(uris...)
		return addErr
	})
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, m.productEvent(domain.EventProductUpdated, updated))
	return len(updated.Thumbnails), nil
}

// RemoveThumbnail удаляет изображение товара по индексу и возвращает удалённый URI.
func (m *ProductManager) RemoveThumbnail(ctx context.Context, id int64, index int) (removed string, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "remove_thumbnail", err) }()

	updated, err := m.mutate(ctx, id, func(p *domain.Product) error {
		var removeErr error
		removed, removeErr = p.RemoveThumbnail(index)
		return removeErr
	})
	if err != nil {
		return "", err
	}
	m.publishHeld(ctx, m.productEvent(domain.EventProductUpdated, updated))
	return removed, nil
}

// ClearThumbnails удаляет все изображения товара.
func (m *ProductManager) ClearThumbnails(ctx context.Context, id int64) (err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "clear_thumbnails", err) }()

	updated, err := m.mutate(ctx, id, func(p *domain.Product) error {
		p.ClearThumbnails()
		return nil
	})
	if err != nil {
		return err
	}
	m.publishHeld(ctx, m.productEvent(domain.EventProductUpdated, updated))
	return nil
}

// DeleteProduct удаляет товар и возвращает оставшееся количество. Id больше не выдаётся.
func (m *ProductManager) DeleteProduct(ctx context.Context, id int64) (remaining int, err error) {
	defer func() { m.opts.metrics.RecordOperation(storeProducts, "delete", err) }()

	remaining, err = m.deleteLocked(ctx, id)
	if err != nil {
		return 0, err
	}
	m.publishHeld(ctx, domain.Event{
		Type:          domain.EventProductDeleted,
		AggregateType: domain.AggregateProduct,
		AggregateID:   id,
		OccurredAt:    m.opts.clock(),
	})
	return remaining, nil
}

func (m *ProductManager) deleteLocked(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx := m.indexByID(id)
	if idx < 0 {
		return 0, productNotFound(id)
	}

	current := m.snapshotProducts()
	next := codec.ProductState{
		LastID:   m.lastID,
		Products: append(current[:idx:idx], current[idx+1:]...),
	}
	if err := m.commit(ctx, next); err != nil {
		return 0, err
	}
	m.publishMu.Lock()
	return len(m.products), nil
}

// mutate применяет fn к копии товара, проверяет уникальность code и фиксирует результат.
func (m *ProductManager) mutate(ctx context.Context, id int64, fn func(*domain.Product) error) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	idx := m.indexByID(id)
	if idx < 0 {
		return domain.Product{}, productNotFound(id)
	}

	next := m.snapshotProducts()
	if err := fn(&next[idx]); err != nil {
		return domain.Product{}, err
	}
	if other := m.indexByCode(next[idx].Code); other >= 0 && other != idx {
		return domain.Product{}, fmt.Errorf("%w: there is already a product with code %s", domain.ErrDuplicateKey, next[idx].Code)
	}

	if err := m.commit(ctx, codec.ProductState{LastID: m.lastID, Products: next}); err != nil {
		return domain.Product{}, err
	}
	m.publishMu.Lock()
	return m.products[idx].Clone(), nil
}

// publishHeld публикует событие зафиксированной мутации и отпускает publishMu,
// захваченный под mu.
func (m *ProductManager) publishHeld(ctx context.Context, event domain.Event) {
	defer m.publishMu.Unlock()
	m.opts.publish(ctx, event)
}

// commit сохраняет следующее состояние и только после успешной записи подменяет текущее.
// Вызывается под m.mu.
func (m *ProductManager) commit(ctx context.Context, next codec.ProductState) error {
	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.lastID = next.LastID
	m.products = next.Products
	m.opts.metrics.SetState(storeProducts, len(m.products), m.lastID)
	m.opts.logger.WithFields(log.Fields{
		"products": len(m.products),
		"last_id":  m.lastID,
	}).Debug("products state committed")
	return nil
}

func (m *ProductManager) persist(ctx context.Context, state codec.ProductState) error {
	data, err := codec.EncodeProducts(state)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, err)
	}

	start := time.Now()
	err = m.docs.Save(ctx, m.name, data)
	m.opts.metrics.ObservePersist(storeProducts, time.Since(start))
	if err != nil {
		m.opts.logger.WithError(err).WithField("document", m.name).Error("failed to persist products, state rolled back")
		return fmt.Errorf("persist products %s: %w", m.name, err)
	}
	return nil
}

// snapshotProducts возвращает глубокую копию коллекции.
func (m *ProductManager) snapshotProducts() []domain.Product {
	out := make([]domain.Product, 0, len(m.products)+1)
	for _, p := range m.products {
		out = append(out, p.Clone())
	}
	return out
}

func (m *ProductManager) indexByID(id int64) int {
	for idx, p := range m.products {
		if p.ID == id {
			return idx
		}
	}
	return -1
}

func (m *ProductManager) indexByCode(code string) int {
	for idx, p := range m.products {
		if p.Code == code {
			return idx
		}
	}
	return -1
}

func (m *ProductManager) productEvent(eventType domain.EventType, p domain.Product) domain.Event {
	return domain.Event{
		Type:          eventType,
		AggregateType: domain.AggregateProduct,
		AggregateID:   p.ID,
		OccurredAt:    m.opts.clock(),
		Payload:       p.View(),
	}
}

func productNotFound(id int64) error {
	return fmt.Errorf("%w: product with id %d was not found", domain.ErrNotFound, id)
}
