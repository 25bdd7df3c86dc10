package domain

import (
	"fmt"
	"math"
	"time"
)

// CartItem описывает позицию корзины. SalesPrice фиксируется в момент добавления
// и не зависит от текущей цены товара.
type CartItem struct {
	ProductID  int64
	SalesPrice float64
	Quantity   int
	CreatedOn  time.Time
	ModifiedOn time.Time
}

// NewCartItem валидирует позицию перед добавлением в корзину.
func NewCartItem(productID int64, salesPrice float64, quantity int) (CartItem, error) {
	if productID <= 0 {
		return CartItem{}, &FieldError{Field: "productId", Reason: "must be a positive integer", Range: true}
	}
	if salesPrice < 0 || math.IsNaN(salesPrice) {
		return CartItem{}, negativeField("salesPrice")
	}
	if quantity < 1 {
		return CartItem{}, &FieldError{Field: "quantity", Reason: "must be greater than 0 (zero)", Range: true}
	}
	return CartItem{ProductID: productID, SalesPrice: salesPrice, Quantity: quantity}, nil
}

// Subtotal возвращает salesPrice × quantity.
func (i CartItem) Subtotal() float64 {
	return i.SalesPrice * float64(i.Quantity)
}

// CartSnapshot хранит плоское представление корзины для сериализации и восстановления.
type CartSnapshot struct {
	ID         int64
	Items      []CartItem
	CreatedOn  time.Time
	ModifiedOn time.Time
}

// Cart — агрегат корзины: упорядоченные позиции, не больше одной на productId.
// Сам себя не сохраняет: каждую мутацию применяет и персистит CartManager.
type Cart struct {
	id         int64
	items      []CartItem
	createdOn  time.Time
	modifiedOn time.Time
	clock      func() time.Time
}

// NewCart создаёт пустую корзину с назначенным идентификатором.
func NewCart(id int64, clock func() time.Time) (*Cart, error) {
	if id <= 0 {
		return nil, &FieldError{Field: "id", Reason: "must be a positive integer", Range: true}
	}
	if clock == nil {
		clock = defaultClock
	}
	now := clock()
	return &Cart{
		id:         id,
		items:      []CartItem{},
		createdOn:  now,
		modifiedOn: now,
		clock:      clock,
	}, nil
}

// RestoreCart восстанавливает корзину из снимка, повторно проверяя все инварианты.
func RestoreCart(s CartSnapshot, clock func() time.Time) (*Cart, error) {
	if s.ID <= 0 {
		return nil, &FieldError{Field: "id", Reason: "must be a positive integer", Range: true}
	}
	if clock == nil {
		clock = defaultClock
	}
	if s.CreatedOn.IsZero() {
		s.CreatedOn = clock()
	}
	if s.ModifiedOn.Before(s.CreatedOn) {
		s.ModifiedOn = s.CreatedOn
	}

	c := &Cart{
		id:         s.ID,
		items:      make([]CartItem, 0, len(s.Items)),
		createdOn:  s.CreatedOn,
		modifiedOn: s.ModifiedOn,
		clock:      clock,
	}
	for idx, raw := range s.Items {
		item, err := NewCartItem(raw.ProductID, raw.SalesPrice, raw.Quantity)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", idx, err)
		}
		if c.indexOf(item.ProductID) >= 0 {
			return nil, &FieldError{Field: "items", Reason: fmt.Sprintf("contains product %d more than once", item.ProductID)}
		}
		item.CreatedOn = raw.CreatedOn
		item.ModifiedOn = raw.ModifiedOn
		if item.CreatedOn.IsZero() {
			item.CreatedOn = c.createdOn
		}
		if item.ModifiedOn.Before(item.CreatedOn) {
			item.ModifiedOn = item.CreatedOn
		}
		c.items = append(c.items, item)
	}
	return c, nil
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

// ID возвращает идентификатор корзины.
func (c *Cart) ID() int64 { return c.id }

// CreatedOn возвращает момент создания корзины.
func (c *Cart) CreatedOn() time.Time { return c.createdOn }

// ModifiedOn возвращает момент последнего изменения корзины.
func (c *Cart) ModifiedOn() time.Time { return c.modifiedOn }

// Len возвращает число различных товаров в корзине.
func (c *Cart) Len() int { return len(c.items) }

// IsEmpty сообщает, что в корзине нет позиций.
func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Count возвращает сумму количеств всех позиций.
func (c *Cart) Count() int {
	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// Total возвращает сумму salesPrice × quantity по всем позициям.
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}

// Item возвращает позицию по productId.
func (c *Cart) Item(productID int64) (CartItem, error) {
	idx := c.indexOf(productID)
	if idx < 0 {
		return CartItem{}, itemNotFound(c.id, productID)
	}
	return c.items[idx], nil
}

// Items возвращает страницу позиций в порядке добавления. limit=0 снимает ограничение.
func (c *Cart) Items(limit, offset int) ([]CartItem, error) {
	if limit < 0 {
		return nil, negativeField("limit")
	}
	if offset < 0 {
		return nil, negativeField("offset")
	}
	if offset >= len(c.items) {
		return []CartItem{}, nil
	}
	end := len(c.items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]CartItem{}, c.items[offset:end]...), nil
}

// AddItem добавляет позицию. Если товар уже есть в корзине, количества суммируются.
// Возвращает итоговое количество этого товара.
func (c *Cart) AddItem(item CartItem) (int, error) {
	validated, err := NewCartItem(item.ProductID, item.SalesPrice, item.Quantity)
	if err != nil {
		return 0, err
	}
	now := c.touch()

	if idx := c.indexOf(validated.ProductID); idx >= 0 {
		c.items[idx].Quantity += validated.Quantity
		c.items[idx].ModifiedOn = now
		return c.items[idx].Quantity, nil
	}

	validated.CreatedOn = now
	validated.ModifiedOn = now
	c.items = append(c.items, validated)
	return validated.Quantity, nil
}

// UpdateItemQuantity задаёт количество позиции. Количество <= 0 удаляет позицию.
func (c *Cart) UpdateItemQuantity(productID int64, quantity int) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return itemNotFound(c.id, productID)
	}
	now := c.touch()
	if quantity <= 0 {
		c.removeAt(idx)
		return nil
	}
	c.items[idx].Quantity = quantity
	c.items[idx].ModifiedOn = now
	return nil
}

// UpdateItemSalesPrice меняет зафиксированную цену позиции.
func (c *Cart) UpdateItemSalesPrice(productID int64, price float64) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return itemNotFound(c.id, productID)
	}
	if price < 0 || math.IsNaN(price) {
		return negativeField("salesPrice")
	}
	now := c.touch()
	c.items[idx].SalesPrice = price
	c.items[idx].ModifiedOn = now
	return nil
}

// RemoveItem удаляет позицию по productId.
func (c *Cart) RemoveItem(productID int64) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return itemNotFound(c.id, productID)
	}
	c.touch()
	c.removeAt(idx)
	return nil
}

// Clear удаляет все позиции.
func (c *Cart) Clear() {
	c.touch()
	c.items = []CartItem{}
}

// Snapshot возвращает копию состояния корзины.
func (c *Cart) Snapshot() CartSnapshot {
	return CartSnapshot{
		ID:         c.id,
		Items:      append([]CartItem{}, c.items...),
		CreatedOn:  c.createdOn,
		ModifiedOn: c.modifiedOn,
	}
}

// Clone возвращает независимую копию агрегата.
func (c *Cart) Clone() *Cart {
	clone := *c
	clone.items = append([]CartItem{}, c.items...)
	return &clone
}

func (c *Cart) indexOf(productID int64) int {
	for idx, item := range c.items {
		if item.ProductID == productID {
			return idx
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.items = append(c.items[:idx:idx], c.items[idx+1:]...)
}

// touch обновляет modifiedOn, не допуская значения раньше createdOn.
func (c *Cart) touch() time.Time {
	now := c.clock()
	if now.Before(c.createdOn) {
		now = c.createdOn
	}
	c.modifiedOn = now
	return now
}

func itemNotFound(cartID, productID int64) error {
	return fmt.Errorf("%w: product %d is not in cart %d", ErrNotFound, productID, cartID)
}
