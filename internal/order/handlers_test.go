package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-billing/internal/order"
)

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newRouter(f fixture) http.Handler {
	h := order.Handler{Svc: f.svc, Validate: validator.New(), Logger: zerolog.Nop()}
	admin := order.AdminHandler{Handler: h}
	r := chi.NewRouter()
	r.Post("/orders/preview", h.Preview)
	r.Post("/orders", h.Place)
	r.Get("/orders/{orderNumber}", h.Get)
	r.Get("/restaurants/{restaurantId}/orders", admin.List)
	r.Patch("/orders/{orderNumber}/status", admin.PatchStatus)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandlerPlaceAndGet(t *testing.T) {
	f := newFixture()
	router := newRouter(f)

	rec := do(t, router, http.MethodPost, "/orders", placeRequest("SAVE10"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data order.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "/api/v1/orders/"+created.Data.OrderNumber, rec.Header().Get("Location"))
	requireDec(t, "24.5", created.Data.TotalAmount)

	rec = do(t, router, http.MethodGet, "/orders/"+created.Data.OrderNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/orders/ORD-NOPE", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestHandlerPlaceCouponConflict(t *testing.T) {
	f := newFixture()
	f.store.remaining["SAVE10"] = 0
	rec := do(t, newRouter(f), http.MethodPost, "/orders", placeRequest("SAVE10"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "CONFLICT", decodeError(t, rec).Error.Code)
}

func TestHandlerPreviewValidation(t *testing.T) {
	router := newRouter(newFixture())

	rec := do(t, router, http.MethodPost, "/orders/preview", map[string]any{"restaurantId": "r1", "items": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	require.Contains(t, string(env.Error.Details), "Items")

	rec = do(t, router, http.MethodPost, "/orders/preview", map[string]any{
		"restaurantId": "r1",
		"items":        []map[string]any{{"menuItemId": "burger", "quantity": 0}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", decodeError(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/preview", bytes.NewBufferString("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", decodeError(t, rec).Error.Code)
}

func TestHandlerPreviewErrors(t *testing.T) {
	router := newRouter(newFixture())

	rec := do(t, router, http.MethodPost, "/orders/preview", map[string]any{
		"restaurantId": "r1",
		"items":        []map[string]any{{"menuItemId": "ghost", "quantity": 1}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "INVALID_CART", env.Error.Code)
	require.JSONEq(t, `{"menuItemId":"ghost"}`, string(env.Error.Details))

	rec = do(t, router, http.MethodPost, "/orders/preview", map[string]any{
		"restaurantId": "r1",
		"items":        []map[string]any{{"menuItemId": "beer", "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"grandTotal"`)
}

func TestAdminHandlerListAndPatch(t *testing.T) {
	f := newFixture()
	router := newRouter(f)
	placed, err := f.svc.Place(context.Background(), placeRequest(""))
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/restaurants/r1/orders?status=pending&limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	var listed struct {
		Data       []order.Order `json:"data"`
		Pagination struct {
			PerPage int `json:"per_page"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	require.Equal(t, 100, listed.Pagination.PerPage)

	path := "/orders/" + placed.OrderNumber + "/status"
	rec = do(t, router, http.MethodPatch, path, map[string]string{"status": "SHIPPED"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPatch, path, map[string]string{"status": "DELIVERED"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPatch, path, map[string]string{"status": "CANCELLED"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_STATE", decodeError(t, rec).Error.Code)
}
