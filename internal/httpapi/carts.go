package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/store"
)

type addItemRequest struct {
	Quantity *int `json:"quantity"`
}

type updateItemRequest struct {
	Quantity   *int     `json:"quantity"`
	SalesPrice *float64 `json:"salesPrice"`
}

func (h *handlers) listCarts(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	carts, err := h.carts.Carts(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]domain.CartView, 0, len(carts))
	for _, cart := range carts {
		views = append(views, cart.View())
	}
	respondPage(c, views, paging(h.carts.Count(), limit, offset, len(views)))
}

func (h *handlers) createCart(c *gin.Context) {
	id, err := h.carts.AddCart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	cart, err := h.carts.CartByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/api/carts/"+strconv.FormatInt(id, 10))
	respond(c, http.StatusCreated, cart.View())
}

func (h *handlers) getCart(c *gin.Context) {
	id, err := idParam(c, "cid")
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, id)
}

func (h *handlers) deleteCart(c *gin.Context) {
	id, err := idParam(c, "cid")
	if err != nil {
		respondError(c, err)
		return
	}
	remaining, err := h.carts.DeleteCart(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": id, "remaining": remaining})
}

func (h *handlers) listCartItems(c *gin.Context) {
	id, err := idParam(c, "cid")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, offset, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	cart, err := h.carts.CartByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.carts.CartItems(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]domain.CartItemView, 0, len(items))
	for _, item := range items {
		views = append(views, item.View())
	}
	respondPage(c, views, paging(cart.Len(), limit, offset, len(views)))
}

func (h *handlers) clearCart(c *gin.Context) {
	id, err := idParam(c, "cid")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.carts.ClearCart(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, id)
}

// addCartItem добавляет товар в корзину по его текущей цене. Тело необязательно: quantity по умолчанию 1.
func (h *handlers) addCartItem(c *gin.Context) {
	cartID, productID, ok := h.cartItemParams(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, &domain.FieldError{Field: "body", Reason: "must be a valid JSON object"})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	product, err := h.products.ProductByID(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	item, err := domain.NewCartItem(product.ID, product.Price, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.carts.AddItem(c.Request.Context(), cartID, item); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, cartID)
}

func (h *handlers) updateCartItem(c *gin.Context) {
	cartID, productID, ok := h.cartItemParams(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &domain.FieldError{Field: "body", Reason: "must be a valid JSON object"})
		return
	}
	if req.Quantity == nil && req.SalesPrice == nil {
		respondError(c, &domain.FieldError{Field: "quantity", Reason: "or salesPrice is mandatory"})
		return
	}

	update := store.ItemUpdate{Quantity: req.Quantity, SalesPrice: req.SalesPrice}
	if err := h.carts.UpdateItem(c.Request.Context(), cartID, productID, update); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, cartID)
}

func (h *handlers) removeCartItem(c *gin.Context) {
	cartID, productID, ok := h.cartItemParams(c)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(c.Request.Context(), cartID, productID); err != nil {
		respondError(c, err)
		return
	}
	h.respondCart(c, cartID)
}

func (h *handlers) cartItemParams(c *gin.Context) (int64, int64, bool) {
	cartID, err := idParam(c, "cid")
	if err != nil {
		respondError(c, err)
		return 0, 0, false
	}
	productID, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return 0, 0, false
	}
	return cartID, productID, true
}

func (h *handlers) respondCart(c *gin.Context, id int64) {
	cart, err := h.carts.CartByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, cart.View())
}
