package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type thumbnailsRequest struct {
	Thumbnails []string `json:"thumbnails"`
}

func (h *handlers) listProducts(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	products, err := h.products.Products(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, p.View())
	}
	respondPage(c, views, paging(h.products.Count(), limit, offset, len(views)))
}

func (h *handlers) getProduct(c *gin.Context) {
	id, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.products.ProductByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p.View())
}

func (h *handlers) getProductByCode(c *gin.Context) {
	p, err := h.products.ProductByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p.View())
}

func (h *handlers) createProduct(c *gin.Context) {
	var in domain.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, &domain.FieldError{Field: "body", Reason: "must be a valid product JSON object"})
		return
	}
	p, err := domain.NewProduct(in)
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := h.products.AddProduct(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := h.products.ProductByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/api/products/"+strconv.FormatInt(id, 10))
	respond(c, http.StatusCreated, created.View())
}

func (h *handlers) updateProduct(c *gin.Context) {
	id, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return
	}
	var in domain.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, &domain.FieldError{Field: "body", Reason: "must be a valid product JSON object"})
		return
	}
	if _, err := h.products.UpdateProduct(c.Request.Context(), id, in); err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.products.ProductByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, updated.View())
}

func (h *handlers) deleteProduct(c *gin.Context) {
	id, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return
	}
	remaining, err := h.products.DeleteProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": id, "remaining": remaining})
}

func (h *handlers) addThumbnails(c *gin.Context) {
	id, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return
	}
	var req thumbnailsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Thumbnails) == 0 {
		respondError(c, &domain.FieldError{Field: "thumbnails", Reason: "is mandatory"})
		return
	}
	if _, err := h.products.AddThumbnails(c.Request.Context(), id, req.Thumbnails...); err != nil {
		respondError(c, err)
		return
	}
	h.respondProduct(c, id)
}

// removeThumbnails удаляет изображение по ?index=N или все изображения без параметра.
func (h *handlers) removeThumbnails(c *gin.Context) {
	id, err := idParam(c, "pid")
	if err != nil {
		respondError(c, err)
		return
	}
	if raw, ok := c.GetQuery("index"); ok {
		index, convErr := strconv.Atoi(raw)
		if convErr != nil {
			respondError(c, &domain.FieldError{Field: "index", Reason: "must be an integer"})
			return
		}
		if _, err := h.products.RemoveThumbnail(c.Request.Context(), id, index); err != nil {
			respondError(c, err)
			return
		}
	} else if err := h.products.ClearThumbnails(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.respondProduct(c, id)
}

func (h *handlers) respondProduct(c *gin.Context, id int64) {
	p, err := h.products.ProductByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p.View())
}
