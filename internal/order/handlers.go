package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/lock"
	"github.com/noah-isme/resto-billing/internal/resilience"
	"github.com/noah-isme/resto-billing/internal/rules"
	"github.com/noah-isme/resto-billing/internal/security"
)

// Handler exposes order pricing and placement endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type fieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Preview prices a cart without placing the order.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	calc, err := h.Svc.Preview(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": calc})
}

// Place creates an order.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var req PlaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Svc.Place(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+o.OrderNumber)
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Get returns an order by number.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if number == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderNumber is required", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), number)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			security.WriteTooLarge(w, mbe.Limit)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate == nil {
		return true
	}
	if err := h.Validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]fieldIssue, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, fieldIssue{Field: fe.Namespace(), Rule: fe.Tag()})
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed", issues)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var inputErr *billing.InputError
	switch {
	case errors.As(err, &inputErr):
		common.JSONError(w, http.StatusBadRequest, "INVALID_CART", inputErr.Reason, map[string]string{"menuItemId": inputErr.MenuItemID})
	case errors.Is(err, rules.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "restaurant not found", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrCouponUnavailable):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, resilience.ErrOpenCircuit), errors.Is(err, lock.ErrLockTimeout):
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try again shortly", nil)
	default:
		h.Logger.Error().Err(err).Msg("order request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to process order", nil)
	}
}

// AdminHandler exposes back-office order management endpoints.
type AdminHandler struct {
	Handler
}

type patchStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=PENDING CONFIRMED PREPARING READY DELIVERED CANCELLED"`
}

// List returns a restaurant's orders, optionally filtered by status.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantId"))
	if restaurantID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "restaurantId is required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	orders, total, err := h.Svc.List(r.Context(), ListFilter{
		RestaurantID: restaurantID,
		Status:       Status(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// PatchStatus moves an order along its lifecycle.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if number == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderNumber is required", nil)
		return
	}
	var req patchStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), number, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}
