package menu

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/security"
)

// Handler serves restaurant and menu listings plus their admin upserts.
type Handler struct {
	Catalog  Catalog
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type restaurantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type itemRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Category    string          `json:"category" validate:"required,max=100"`
	TaxCategory string          `json:"taxCategory" validate:"max=100"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	IsAvailable *bool           `json:"isAvailable"`
}

type fieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Restaurants handles GET /api/v1/restaurants.
func (h *Handler) Restaurants(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Catalog.Restaurants(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Menu handles GET /api/v1/restaurants/{restaurantId}/menu?category=.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathParam(w, r, "restaurantId")
	if !ok {
		return
	}
	items, err := h.Catalog.Items(r.Context(), restaurantID, strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// PutRestaurant creates or renames a restaurant.
func (h *Handler) PutRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathParam(w, r, "restaurantId")
	if !ok {
		return
	}
	var req restaurantRequest
	if !h.decode(w, r, &req) {
		return
	}
	saved, err := h.Catalog.SaveRestaurant(r.Context(), Restaurant{ID: restaurantID, Name: strings.TrimSpace(req.Name)})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// PutItem creates or replaces a menu item. Items default to available.
func (h *Handler) PutItem(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathParam(w, r, "restaurantId")
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, "itemId")
	if !ok {
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.BasePrice.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed",
			[]fieldIssue{{Field: "itemRequest.BasePrice", Rule: "gte"}})
		return
	}
	it := Item{
		ID:          itemID,
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		TaxCategory: strings.TrimSpace(req.TaxCategory),
		BasePrice:   req.BasePrice,
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
	}
	if err := h.Catalog.SaveItem(r.Context(), restaurantID, it); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": it})
}

// RetireItem takes an item off the menu.
func (h *Handler) RetireItem(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathParam(w, r, "restaurantId")
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, "itemId")
	if !ok {
		return
	}
	if err := h.Catalog.Retire(r.Context(), restaurantID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "restaurant or menu item not found", nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		h.Logger.Error().Err(err).Msg("menu request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to process menu request", nil)
	}
}

func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", name+" is required", nil)
		return "", false
	}
	return v, true
}
