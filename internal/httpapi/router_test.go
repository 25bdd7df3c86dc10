package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router   *gin.Engine
	products *store.ProductManager
	carts    *store.CartManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	products, err := store.NewProductManager(ctx, filepath.Join(dir, "ProductManager.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = products.Close() })

	carts, err := store.NewCartManager(ctx, filepath.Join(dir, "CartManager.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = carts.Close() })

	return &testAPI{
		router:   NewRouter(Deps{Products: products, Carts: carts}),
		products: products,
		carts:    carts,
	}
}

type envelope struct {
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Paging    *Paging         `json:"paging"`
	RequestID string          `json:"requestId"`
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.Equal(t, w.Code, env.Status.Code)
	return w, env
}

func productBody(code string) map[string]any {
	return map[string]any{
		"title":       "producto prueba",
		"description": "Este es un producto prueba",
		"code":        code,
		"price":       200,
		"stock":       25,
		"category":    "c1",
	}
}

func TestProducts_CRUD(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/products", productBody("abc123"))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "/api/products/1", w.Header().Get("Location"))
	require.NotEmpty(t, env.RequestID)

	var created domain.ProductView
	require.NoError(t, json.Unmarshal(env.Payload, &created))
	require.Equal(t, int64(1), created.ID)
	require.Equal(t, "ABC123", created.Code)
	require.True(t, created.Status)

	w, env = api.do(t, http.MethodPost, "/api/products", productBody("ABC123"))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, env.Error, "ABC123")

	w, _ = api.do(t, http.MethodGet, "/api/products/code/abc123", nil)
	require.Equal(t, http.StatusOK, w.Code)

	update := productBody("abc123")
	update["stock"] = 3
	w, env = api.do(t, http.MethodPut, "/api/products/1", update)
	require.Equal(t, http.StatusOK, w.Code)
	var updated domain.ProductView
	require.NoError(t, json.Unmarshal(env.Payload, &updated))
	require.Equal(t, 3, updated.Stock)

	w, _ = api.do(t, http.MethodDelete, "/api/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/products/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/products/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	body := productBody("x1")
	delete(body, "price")
	w, env := api.do(t, http.MethodPost, "/api/products", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, env.Error, `"price"`)

	w, _ = api.do(t, http.MethodPost, "/api/products", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/products/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/products?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/products?offset=abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProducts_Paging(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, string(env.Payload))

	for i := 1; i <= 5; i++ {
		w, _ := api.do(t, http.MethodPost, "/api/products", productBody(fmt.Sprintf("sku-%d", i)))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, env = api.do(t, http.MethodGet, "/api/products?limit=2&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page []domain.ProductView
	require.NoError(t, json.Unmarshal(env.Payload, &page))
	require.Len(t, page, 2)
	require.Equal(t, Paging{TotalRecords: 5, Limit: 2, Offset: 0, HasNextPage: true}, *env.Paging)

	w, env = api.do(t, http.MethodGet, "/api/products?limit=10&offset=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &page))
	require.Len(t, page, 1)
	require.False(t, env.Paging.HasNextPage)
	require.True(t, env.Paging.HasPrevPage)

	w, _ = api.do(t, http.MethodGet, "/api/products?limit=2&offset=5", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts_Thumbnails(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/products", productBody("sku-1"))

	w, env := api.do(t, http.MethodPost, "/api/products/1/thumbnails", map[string]any{"thumbnails": []string{"a.png", "b.png"}})
	require.Equal(t, http.StatusOK, w.Code)
	var p domain.ProductView
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, []string{"a.png", "b.png"}, p.Thumbnails)

	w, _ = api.do(t, http.MethodDelete, "/api/products/1/thumbnails?index=7", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodDelete, "/api/products/1/thumbnails?index=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, []string{"b.png"}, p.Thumbnails)

	w, env = api.do(t, http.MethodDelete, "/api/products/1/thumbnails", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Empty(t, p.Thumbnails)

	w, _ = api.do(t, http.MethodPost, "/api/products/1/thumbnails", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCarts_Flow(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/api/products", productBody("sku-1"))

	w, env := api.do(t, http.MethodPost, "/api/carts", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var cart domain.CartView
	require.NoError(t, json.Unmarshal(env.Payload, &cart))
	require.Equal(t, int64(1), cart.ID)
	require.Empty(t, cart.Items)

	w, _ = api.do(t, http.MethodPost, "/api/carts/1/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = api.do(t, http.MethodPost, "/api/carts/1/products/1", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &cart))
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Count)
	require.InDelta(t, 600.0, cart.Total, 1e-9)
	require.InDelta(t, 200.0, cart.Items[0].SalesPrice, 1e-9)

	w, _ = api.do(t, http.MethodPost, "/api/carts/1/products/99", nil)
	require.Equal(t, http.StatusNotFound, w.Code, "unknown product")
	w, _ = api.do(t, http.MethodPost, "/api/carts/9/products/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code, "unknown cart")

	w, env = api.do(t, http.MethodPut, "/api/carts/1/products/1", map[string]any{"quantity": 5, "salesPrice": 150})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &cart))
	require.InDelta(t, 750.0, cart.Total, 1e-9)

	w, _ = api.do(t, http.MethodPut, "/api/carts/1/products/1", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPut, "/api/carts/1/products/1", map[string]any{"quantity": 1, "salesPrice": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, env = api.do(t, http.MethodGet, "/api/carts/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &cart))
	require.Equal(t, 5, cart.Count, "rejected price leaves quantity untouched")
	require.InDelta(t, 750.0, cart.Total, 1e-9)

	w, env = api.do(t, http.MethodGet, "/api/carts/1/items?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, env.Paging.TotalRecords)

	w, _ = api.do(t, http.MethodDelete, "/api/carts/1", nil)
	require.Equal(t, http.StatusConflict, w.Code, "cart with items cannot be deleted")

	w, _ = api.do(t, http.MethodDelete, "/api/carts/1/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/carts/1/products/1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	api.do(t, http.MethodPost, "/api/carts/1/products/1", nil)
	w, env = api.do(t, http.MethodDelete, "/api/carts/1/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Payload, &cart))
	require.Empty(t, cart.Items)

	w, _ = api.do(t, http.MethodDelete, "/api/carts/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/carts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, env.Paging.TotalRecords)
}

func TestRouter_NotFoundAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.Header.Set(HeaderRequestID, "3f1c0d8e-4a4b-4d7b-9a55-0c6a3d0f8e21")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "3f1c0d8e-4a4b-4d7b-9a55-0c6a3d0f8e21", w.Header().Get(HeaderRequestID))

	w, _ = api.do(t, http.MethodPatch, "/api/products", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.FieldError{Field: "title", Reason: "is mandatory"}, http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrDuplicateKey, http.StatusConflict},
		{domain.ErrCartNotEmpty, http.StatusConflict},
		{fmt.Errorf("%w: disk", domain.ErrStorageIO), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
