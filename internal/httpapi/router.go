package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/store"
)

// DefaultPageLimit задаёт размер страницы, если клиент не передал limit.
const DefaultPageLimit = 10

// Deps — зависимости обработчиков.
type Deps struct {
	Products *store.ProductManager
	Carts    *store.CartManager
	// Feed обслуживает websocket-ленту товаров; nil отключает /ws/products.
	Feed   http.Handler
	Logger *log.Entry
}

type handlers struct {
	products *store.ProductManager
	carts    *store.CartManager
}

// NewRouter собирает gin.Engine со всеми маршрутами API.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	r := gin.New()
	r.Use(requestContext(logger), accessLog(), recovery())
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Status: newStatus(http.StatusNotFound), Error: "route not found", RequestID: requestID(c)})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{Status: newStatus(http.StatusMethodNotAllowed), Error: "method not allowed", RequestID: requestID(c)})
	})

	h := &handlers{products: deps.Products, carts: deps.Carts}

	products := r.Group("/api/products")
	products.GET("", h.listProducts)
	products.POST("", h.createProduct)
	products.GET("/code/:code", h.getProductByCode)
	products.GET("/:pid", h.getProduct)
	products.PUT("/:pid", h.updateProduct)
	products.DELETE("/:pid", h.deleteProduct)
	products.POST("/:pid/thumbnails", h.addThumbnails)
	products.DELETE("/:pid/thumbnails", h.removeThumbnails)

	carts := r.Group("/api/carts")
	carts.GET("", h.listCarts)
	carts.POST("", h.createCart)
	carts.GET("/:cid", h.getCart)
	carts.DELETE("/:cid", h.deleteCart)
	carts.GET("/:cid/items", h.listCartItems)
	carts.DELETE("/:cid/items", h.clearCart)
	carts.POST("/:cid/products/:pid", h.addCartItem)
	carts.PUT("/:cid/products/:pid", h.updateCartItem)
	carts.DELETE("/:cid/products/:pid", h.removeCartItem)

	if deps.Feed != nil {
		r.GET("/ws/products", gin.WrapH(deps.Feed))
	}
	return r
}

// idParam разбирает положительный идентификатор из пути.
func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.FieldError{Field: name, Reason: "must be a positive integer", Range: true}
	}
	return id, nil
}

// pageParams разбирает limit и offset. Без limit берётся DefaultPageLimit, limit=0 снимает ограничение.
func pageParams(c *gin.Context) (int, int, error) {
	limit, err := intQuery(c, "limit", DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.FieldError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

func paging(total, limit, offset, returned int) Paging {
	return Paging{
		TotalRecords: total,
		Limit:        limit,
		Offset:       offset,
		HasNextPage:  offset+returned < total,
		HasPrevPage:  offset > 0,
	}
}
