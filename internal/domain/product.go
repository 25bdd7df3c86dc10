package domain

import (
	"math"
	"strings"
)

// ProductInput — данные товара, пришедшие снаружи (HTTP, документ хранилища).
// Price и Stock заданы указателями, чтобы отличать отсутствующее значение от нуля.
type ProductInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	Category    string   `json:"category"`
	Status      *bool    `json:"status,omitempty"`
	Thumbnails  []string `json:"thumbnails,omitempty"`
}

// Product описывает товар каталога. ID назначает только ProductManager.
type Product struct {
	ID          int64
	Title       string
	Description string
	Code        string
	Price       float64
	Stock       int
	Category    string
	Status      bool
	Thumbnails  []string
}

// NewProduct валидирует вход и возвращает товар без назначенного ID.
func NewProduct(in ProductInput) (Product, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Product{}, missingField("title")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Product{}, missingField("description")
	}
	if in.Price == nil {
		return Product{}, missingField("price")
	}
	if *in.Price < 0 || math.IsNaN(*in.Price) {
		return Product{}, negativeField("price")
	}
	code := NormalizeCode(in.Code)
	if code == "" {
		return Product{}, missingField("code")
	}
	if in.Stock == nil {
		return Product{}, missingField("stock")
	}
	if *in.Stock < 0 {
		return Product{}, negativeField("stock")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return Product{}, missingField("category")
	}

	thumbnails, err := normalizeThumbnails(in.Thumbnails)
	if err != nil {
		return Product{}, err
	}

	status := true
	if in.Status != nil {
		status = *in.Status
	}

	return Product{
		Title:       title,
		Description: description,
		Code:        code,
		Price:       *in.Price,
		Stock:       *in.Stock,
		Category:    category,
		Status:      status,
		Thumbnails:  thumbnails,
	}, nil
}

// RestoreProduct восстанавливает сохранённый товар через тот же путь валидации, что и NewProduct.
func RestoreProduct(id int64, in ProductInput) (Product, error) {
	if id <= 0 {
		return Product{}, &FieldError{Field: "id", Reason: "must be a positive integer", Range: true}
	}
	p, err := NewProduct(in)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	return p, nil
}

// NormalizeCode приводит SKU к канонической форме: без пробелов по краям, в верхнем регистре.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Input возвращает товар в виде входной структуры (для сериализации и повторной валидации).
func (p Product) Input() ProductInput {
	price := p.Price
	stock := p.Stock
	status := p.Status
	return ProductInput{
		Title:       p.Title,
		Description: p.Description,
		Code:        p.Code,
		Price:       &price,
		Stock:       &stock,
		Category:    p.Category,
		Status:      &status,
		Thumbnails:  append([]string{}, p.Thumbnails...),
	}
}

// Clone возвращает глубокую копию товара.
func (p Product) Clone() Product {
	p.Thumbnails = append([]string{}, p.Thumbnails...)
	return p
}

// AddThumbnails добавляет URI изображений и возвращает новое количество.
func (p *Product) AddThumbnails(uris ...string) (int, error) {
	if len(uris) == 0 {
		return len(p.Thumbnails), &FieldError{Field: "uris", Reason: "must have, at least, one element"}
	}
	normalized, err := normalizeThumbnails(uris)
	if err != nil {
		return len(p.Thumbnails), err
	}
	p.Thumbnails = append(p.Thumbnails, normalized...)
	return len(p.Thumbnails), nil
}

// RemoveThumbnail удаляет изображение по индексу и возвращает удалённый URI.
func (p *Product) RemoveThumbnail(index int) (string, error) {
	if index < 0 || index >= len(p.Thumbnails) {
		return "", &FieldError{Field: "index", Reason: "is out of bounds", Range: true}
	}
	removed := p.Thumbnails[index]
	p.Thumbnails = append(p.Thumbnails[:index:index], p.Thumbnails[index+1:]...)
	return removed, nil
}

// ClearThumbnails удаляет все изображения товара.
func (p *Product) ClearThumbnails() {
	p.Thumbnails = []string{}
}

func normalizeThumbnails(uris []string) ([]string, error) {
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			return nil, &FieldError{Field: "thumbnails", Reason: "must not contain empty URIs"}
		}
		out = append(out, uri)
	}
	return out, nil
}
