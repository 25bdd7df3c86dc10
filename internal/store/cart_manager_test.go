package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newTestCarts(t *testing.T, opts ...Option) (*CartManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CartManager.json")
	m, err := NewCartManager(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func item(t *testing.T, productID int64, price float64, qty int) domain.CartItem {
	t.Helper()
	it, err := domain.NewCartItem(productID, price, qty)
	require.NoError(t, err)
	return it
}

func TestCartManager_AddCartAndItems(t *testing.T) {
	ctx := context.Background()
	m, path := newTestCarts(t, WithClock(fixedClock()))

	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	qty, err := m.AddItem(ctx, id, item(t, 7, 10, 2))
	require.NoError(t, err)
	require.Equal(t, 2, qty)

	qty, err = m.AddItem(ctx, id, item(t, 7, 10, 3))
	require.NoError(t, err)
	require.Equal(t, 5, qty, "repeated product merges quantities")

	_, err = m.AddItem(ctx, id, item(t, 8, 2.5, 4))
	require.NoError(t, err)

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, cart.Len())
	require.Equal(t, 9, cart.Count())
	require.InDelta(t, 60.0, cart.Total(), 1e-9)
	require.True(t, cart.ModifiedOn().After(cart.CreatedOn()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"lastCartId": 1`)
	require.Contains(t, string(data), `"count": 9`)
}

func TestCartManager_AddItemValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)

	_, err = m.AddItem(ctx, id, domain.CartItem{ProductID: 1, SalesPrice: 1, Quantity: 0})
	require.True(t, domain.IsValidation(err))

	_, err = m.AddItem(ctx, 99, item(t, 1, 1, 1))
	require.ErrorIs(t, err, domain.ErrNotFound)

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestCartManager_UpdateAndRemoveItems(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 1, 10, 1))
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 2, 20, 1))
	require.NoError(t, err)

	require.NoError(t, m.UpdateItemQuantity(ctx, id, 1, 4))
	require.NoError(t, m.UpdateItemSalesPrice(ctx, id, 2, 15))

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 55.0, cart.Total(), 1e-9)

	err = m.UpdateItemSalesPrice(ctx, id, 2, -1)
	require.ErrorIs(t, err, domain.ErrOutOfRange)

	require.NoError(t, m.UpdateItemQuantity(ctx, id, 1, 0), "zero quantity removes the item")
	_, err = m.CartByID(ctx, id)
	require.NoError(t, err)
	items, err := m.CartItems(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(2), items[0].ProductID)

	require.ErrorIs(t, m.RemoveItem(ctx, id, 1), domain.ErrNotFound)
	require.NoError(t, m.RemoveItem(ctx, id, 2))

	cart, err = m.CartByID(ctx, id)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestCartManager_UpdateItemIsAtomic(t *testing.T) {
	ctx := context.Background()
	docs := newMemDocs()
	rec := &recorder{}
	m, err := OpenCartManager(ctx, docs, "carts", WithPublisher(rec))
	require.NoError(t, err)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 1, 10, 2))
	require.NoError(t, err)

	saves := docs.saveCount()
	events := len(rec.types())
	qty, price := 7, 12.5
	require.NoError(t, m.UpdateItem(ctx, id, 1, ItemUpdate{Quantity: &qty, SalesPrice: &price}))
	require.Equal(t, saves+1, docs.saveCount(), "both fields in one commit")
	require.Len(t, rec.types(), events+1)

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 7, cart.Count())
	require.InDelta(t, 87.5, cart.Total(), 1e-9)

	one, negative := 1, -1.0
	err = m.UpdateItem(ctx, id, 1, ItemUpdate{Quantity: &one, SalesPrice: &negative})
	require.ErrorIs(t, err, domain.ErrOutOfRange)

	docs.setFailSave(true)
	err = m.UpdateItem(ctx, id, 1, ItemUpdate{Quantity: &one, SalesPrice: &price})
	require.ErrorIs(t, err, domain.ErrStorageIO)
	docs.setFailSave(false)

	cart, err = m.CartByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 7, cart.Count(), "failed updates change nothing")
	require.InDelta(t, 87.5, cart.Total(), 1e-9)

	require.ErrorIs(t, m.UpdateItem(ctx, id, 1, ItemUpdate{}), domain.ErrValidation)
	require.ErrorIs(t, m.UpdateItem(ctx, id, 9, ItemUpdate{Quantity: &one}), domain.ErrNotFound)

	zero := 0
	require.NoError(t, m.UpdateItem(ctx, id, 1, ItemUpdate{Quantity: &zero, SalesPrice: &price}))
	cart, err = m.CartByID(ctx, id)
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestCartManager_EmptyFileIsCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carts.json")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))

	_, err := NewCartManager(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrStorageCorruption)
}

func TestCartManager_CartItemsPaging(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	for pid := int64(1); pid <= 3; pid++ {
		_, err := m.AddItem(ctx, id, item(t, pid, 1, 1))
		require.NoError(t, err)
	}

	page, err := m.CartItems(ctx, id, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, int64(2), page[0].ProductID)

	past, err := m.CartItems(ctx, id, 2, 10)
	require.NoError(t, err)
	require.Empty(t, past)

	_, err = m.CartItems(ctx, 42, 0, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCartManager_ClearAndDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)
	first, err := m.AddCart(ctx)
	require.NoError(t, err)
	second, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, first, item(t, 1, 5, 2))
	require.NoError(t, err)

	_, err = m.DeleteCart(ctx, first)
	require.ErrorIs(t, err, domain.ErrCartNotEmpty)

	require.NoError(t, m.ClearCart(ctx, first))
	remaining, err := m.DeleteCart(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)

	_, err = m.CartByID(ctx, first)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.DeleteCart(ctx, first)
	require.ErrorIs(t, err, domain.ErrNotFound)

	next, err := m.AddCart(ctx)
	require.NoError(t, err)
	require.Equal(t, second+1, next, "deleted ids are not reused")
}

func TestCartManager_Paging(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)

	carts, err := m.Carts(ctx, 0, 0)
	require.NoError(t, err)
	require.Empty(t, carts)

	for i := 0; i < 3; i++ {
		_, err := m.AddCart(ctx)
		require.NoError(t, err)
	}
	carts, err = m.Carts(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, carts, 2)
	require.Equal(t, int64(2), carts[0].ID())

	_, err = m.Carts(ctx, 1, 3)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCartManager_ReloadFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "carts.json")

	m, err := NewCartManager(ctx, path)
	require.NoError(t, err)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 3, 12.5, 2))
	require.NoError(t, err)
	_, err = m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.DeleteCart(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	reopened, err := NewCartManager(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 1, reopened.Count())
	require.Equal(t, int64(2), reopened.LastID())
	cart, err := reopened.CartByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, cart.Count())
	require.InDelta(t, 25.0, cart.Total(), 1e-9)

	// Добавление после перезагрузки сливается с восстановленной позицией.
	qty, err := reopened.AddItem(ctx, id, item(t, 3, 12.5, 1))
	require.NoError(t, err)
	require.Equal(t, 3, qty)

	next, err := reopened.AddCart(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), next)
}

func TestCartManager_FailedPersistRollsBack(t *testing.T) {
	ctx := context.Background()
	docs := newMemDocs()
	m, err := OpenCartManager(ctx, docs, "carts")
	require.NoError(t, err)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 1, 10, 1))
	require.NoError(t, err)

	docs.setFailSave(true)
	_, err = m.AddItem(ctx, id, item(t, 1, 10, 5))
	require.ErrorIs(t, err, domain.ErrStorageIO)
	require.ErrorIs(t, m.ClearCart(ctx, id), domain.ErrStorageIO)
	_, err = m.AddCart(ctx)
	require.ErrorIs(t, err, domain.ErrStorageIO)

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, cart.Count())
	require.Equal(t, int64(1), m.LastID())
	require.Equal(t, 1, m.Count())
}

func TestCartManager_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestCarts(t)
	id, err := m.AddCart(ctx)
	require.NoError(t, err)

	cart, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	_, err = cart.AddItem(item(t, 1, 1, 1))
	require.NoError(t, err)

	stored, err := m.CartByID(ctx, id)
	require.NoError(t, err)
	require.True(t, stored.IsEmpty(), "changes to a returned cart are not persisted")
}

func TestCartManager_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m, err := OpenCartManager(ctx, newMemDocs(), "carts", WithPublisher(rec))
	require.NoError(t, err)

	id, err := m.AddCart(ctx)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, id, item(t, 1, 3, 2))
	require.NoError(t, err)
	require.NoError(t, m.ClearCart(ctx, id))
	_, err = m.DeleteCart(ctx, id)
	require.NoError(t, err)

	require.Equal(t, []domain.EventType{
		domain.EventCartCreated,
		domain.EventCartUpdated,
		domain.EventCartUpdated,
		domain.EventCartDeleted,
	}, rec.types())

	view, ok := rec.events[1].Payload.(domain.CartView)
	require.True(t, ok)
	require.Equal(t, 2, view.Count)
	require.InDelta(t, 6.0, view.Total, 1e-9)
}

func TestCartManager_FileIsExclusive(t *testing.T) {
	_, path := newTestCarts(t)

	_, err := NewCartManager(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrStorageInUse)
}
