// Package codec сериализует состояние хранилищ в JSON-документы и обратно.
// Сущности восстанавливаются через доменные конструкторы, поэтому инварианты
// проверяются при загрузке так же, как при создании.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductState хранит состояние ProductManager: high-water mark и товары в порядке добавления.
type ProductState struct {
	LastID   int64
	Products []domain.Product
}

// CartState хранит состояние CartManager.
type CartState struct {
	LastID int64
	Carts  []*domain.Cart
}

type productDocument struct {
	LastProductID int64                `json:"lastProductId"`
	Products      []domain.ProductView `json:"products"`
}

type productRecord struct {
	ID int64 `json:"id"`
	domain.ProductInput
}

type productDocumentIn struct {
	LastProductID *int64          `json:"lastProductId"`
	Products      []productRecord `json:"products"`
}

type cartDocument struct {
	LastCartID int64             `json:"lastCartId"`
	Carts      []domain.CartView `json:"carts"`
}

type cartItemRecord struct {
	ProductID  int64     `json:"productId"`
	SalesPrice *float64  `json:"salesPrice"`
	Quantity   *int      `json:"quantity"`
	CreatedOn  time.Time `json:"createdOn"`
	ModifiedOn time.Time `json:"modifiedOn"`
}

// count и total из документа сознательно не читаются: они пересчитываются агрегатом.
type cartRecord struct {
	ID         int64            `json:"id"`
	Items      []cartItemRecord `json:"items"`
	CreatedOn  time.Time        `json:"createdOn"`
	ModifiedOn time.Time        `json:"modifiedOn"`
}

type cartDocumentIn struct {
	LastCartID *int64       `json:"lastCartId"`
	Carts      []cartRecord `json:"carts"`
}

// EncodeProducts сериализует состояние в формат {"lastProductId": n, "products": [...]}.
func EncodeProducts(state ProductState) ([]byte, error) {
	doc := productDocument{
		LastProductID: state.LastID,
		Products:      make([]domain.ProductView, 0, len(state.Products)),
	}
	for _, p := range state.Products {
		doc.Products = append(doc.Products, p.View())
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	return data, nil
}

// DecodeProducts разбирает документ товаров. nil означает отсутствие документа;
// существующий, но пустой документ считается повреждённым.
func DecodeProducts(data []byte) (ProductState, error) {
	if data == nil {
		return ProductState{Products: []domain.Product{}}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ProductState{}, corrupted("products document is empty")
	}

	var doc productDocumentIn
	if err := strictUnmarshal(data, &doc); err != nil {
		return ProductState{}, corrupted("parse products document: %w", err)
	}
	if doc.LastProductID == nil {
		return ProductState{}, corrupted("products document: lastProductId is missing")
	}
	lastID := *doc.LastProductID
	if lastID < 0 {
		return ProductState{}, corrupted("products document: negative lastProductId %d", lastID)
	}

	state := ProductState{LastID: lastID, Products: make([]domain.Product, 0, len(doc.Products))}
	ids := make(map[int64]struct{}, len(doc.Products))
	codes := make(map[string]struct{}, len(doc.Products))
	for idx, rec := range doc.Products {
		p, err := domain.RestoreProduct(rec.ID, rec.ProductInput)
		if err != nil {
			return ProductState{}, corrupted("products[%d]: %v", idx, err)
		}
		if p.ID > lastID {
			return ProductState{}, corrupted("products[%d]: id %d exceeds lastProductId %d", idx, p.ID, lastID)
		}
		if _, dup := ids[p.ID]; dup {
			return ProductState{}, corrupted("products[%d]: duplicate id %d", idx, p.ID)
		}
		if _, dup := codes[p.Code]; dup {
			return ProductState{}, corrupted("products[%d]: duplicate code %s", idx, p.Code)
		}
		ids[p.ID] = struct{}{}
		codes[p.Code] = struct{}{}
		state.Products = append(state.Products, p)
	}
	return state, nil
}

// EncodeCarts сериализует состояние в формат {"lastCartId": n, "carts": [...]}.
func EncodeCarts(state CartState) ([]byte, error) {
	doc := cartDocument{
		LastCartID: state.LastID,
		Carts:      make([]domain.CartView, 0, len(state.Carts)),
	}
	for _, c := range state.Carts {
		doc.Carts = append(doc.Carts, c.View())
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode carts: %w", err)
	}
	return data, nil
}

// DecodeCarts разбирает документ корзин; clock передаётся восстановленным агрегатам.
// nil означает отсутствие документа, пустой документ считается повреждённым.
func DecodeCarts(data []byte, clock func() time.Time) (CartState, error) {
	if data == nil {
		return CartState{Carts: []*domain.Cart{}}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return CartState{}, corrupted("carts document is empty")
	}

	var doc cartDocumentIn
	if err := strictUnmarshal(data, &doc); err != nil {
		return CartState{}, corrupted("parse carts document: %w", err)
	}
	if doc.LastCartID == nil {
		return CartState{}, corrupted("carts document: lastCartId is missing")
	}
	lastID := *doc.LastCartID
	if lastID < 0 {
		return CartState{}, corrupted("carts document: negative lastCartId %d", lastID)
	}

	state := CartState{LastID: lastID, Carts: make([]*domain.Cart, 0, len(doc.Carts))}
	ids := make(map[int64]struct{}, len(doc.Carts))
	for idx, rec := range doc.Carts {
		snapshot := domain.CartSnapshot{
			ID:         rec.ID,
			CreatedOn:  rec.CreatedOn,
			ModifiedOn: rec.ModifiedOn,
			Items:      make([]domain.CartItem, 0, len(rec.Items)),
		}
		for itemIdx, item := range rec.Items {
			if item.SalesPrice == nil || item.Quantity == nil {
				return CartState{}, corrupted("carts[%d].items[%d]: salesPrice and quantity are required", idx, itemIdx)
			}
			snapshot.Items = append(snapshot.Items, domain.CartItem{
				ProductID:  item.ProductID,
				SalesPrice: *item.SalesPrice,
				Quantity:   *item.Quantity,
				CreatedOn:  item.CreatedOn,
				ModifiedOn: item.ModifiedOn,
			})
		}

		cart, err := domain.RestoreCart(snapshot, clock)
		if err != nil {
			return CartState{}, corrupted("carts[%d]: %v", idx, err)
		}
		if cart.ID() > lastID {
			return CartState{}, corrupted("carts[%d]: id %d exceeds lastCartId %d", idx, cart.ID(), lastID)
		}
		if _, dup := ids[cart.ID()]; dup {
			return CartState{}, corrupted("carts[%d]: duplicate id %d", idx, cart.ID())
		}
		ids[cart.ID()] = struct{}{}
		state.Carts = append(state.Carts, cart)
	}
	return state, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrStorageCorruption}, args...)...)
}
