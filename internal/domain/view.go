package domain

import "time"

// ProductView — внешнее JSON-представление товара (HTTP, события, документ хранилища).
type ProductView struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Status      bool     `json:"status"`
	Thumbnails  []string `json:"thumbnails"`
}

// View возвращает JSON-представление товара.
func (p Product) View() ProductView {
	thumbnails := append([]string{}, p.Thumbnails...)
	return ProductView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Code:        p.Code,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		Status:      p.Status,
		Thumbnails:  thumbnails,
	}
}

// CartItemView задаёт JSON-представление позиции корзины.
type CartItemView struct {
	ProductID  int64     `json:"productId"`
	SalesPrice float64   `json:"salesPrice"`
	Quantity   int       `json:"quantity"`
	CreatedOn  time.Time `json:"createdOn"`
	ModifiedOn time.Time `json:"modifiedOn"`
}

// CartView задаёт JSON-представление корзины; count и total вычисляются при построении.
type CartView struct {
	ID         int64          `json:"id"`
	Items      []CartItemView `json:"items"`
	CreatedOn  time.Time      `json:"createdOn"`
	ModifiedOn time.Time      `json:"modifiedOn"`
	Count      int            `json:"count"`
	Total      float64        `json:"total"`
}

// View возвращает JSON-представление корзины.
func (c *Cart) View() CartView {
	items := make([]CartItemView, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item.View())
	}
	return CartView{
		ID:         c.id,
		Items:      items,
		CreatedOn:  c.createdOn,
		ModifiedOn: c.modifiedOn,
		Count:      c.Count(),
		Total:      c.Total(),
	}
}

// View возвращает JSON-представление позиции.
func (i CartItem) View() CartItemView {
	return CartItemView{
		ProductID:  i.ProductID,
		SalesPrice: i.SalesPrice,
		Quantity:   i.Quantity,
		CreatedOn:  i.CreatedOn,
		ModifiedOn: i.ModifiedOn,
	}
}
