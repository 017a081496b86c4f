package coupon

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/resilience"
)

// Handler exposes the public coupon validation endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type validateRequest struct {
	RestaurantID string `json:"restaurantId" validate:"required"`
	Code         string `json:"code" validate:"required,max=64"`
}

type validateError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type validateResponse struct {
	Valid  bool            `json:"valid"`
	Coupon *billing.Coupon `json:"coupon,omitempty"`
	Error  *validateError  `json:"error,omitempty"`
}

// Check reports whether a coupon code is currently redeemable.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "restaurantId and code are required", nil)
			return
		}
	}

	c, err := h.Svc.Validate(r.Context(), req.RestaurantID, req.Code)
	if err != nil {
		reason := Reason(err)
		if errors.Is(err, resilience.ErrOpenCircuit) {
			common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try again shortly", nil)
			return
		}
		if reason == "" {
			h.Logger.Error().Err(err).Str("restaurant_id", req.RestaurantID).Msg("coupon validation failed")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to validate coupon", nil)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": validateResponse{
			Error: &validateError{Code: reason, Message: err.Error()},
		}})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": validateResponse{Valid: true, Coupon: &c}})
}
