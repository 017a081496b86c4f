package rules

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/security"
)

// AdminHandler exposes rule and coupon management endpoints. Every write
// drops the restaurant's cached snapshot.
type AdminHandler struct {
	Store       AdminStore
	Invalidator Invalidator
	Logger      zerolog.Logger
}

// List returns every stored rule for a restaurant, inactive ones included.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantParam(w, r)
	if !ok {
		return
	}
	rs, err := h.Store.All(r.Context(), restaurantID)
	if err != nil {
		h.writeError(w, err, restaurantID)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rs})
}

// Create stores a new rule under a generated id.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, uuid.NewString(), http.StatusCreated)
}

// Update creates or replaces the rule named in the path.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ruleId is required", nil)
		return
	}
	h.save(w, r, id, http.StatusOK)
}

// Deactivate switches a rule off. Stored rows are never deleted.
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantParam(w, r)
	if !ok {
		return
	}
	family := chi.URLParam(r, "family")
	id := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if err := h.Store.Deactivate(r.Context(), restaurantID, family, id); err != nil {
		h.writeError(w, err, restaurantID)
		return
	}
	h.invalidate(r.Context(), restaurantID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) save(w http.ResponseWriter, r *http.Request, id string, status int) {
	restaurantID, ok := restaurantParam(w, r)
	if !ok {
		return
	}
	family := chi.URLParam(r, "family")
	if _, known := familyTables[family]; !known {
		h.writeError(w, ErrUnknownFamily, restaurantID)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			security.WriteTooLarge(w, mbe.Limit)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	rs, rule, err := decodeRule(family, id, body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := billing.ValidateRuleSet(rs); err != nil {
		writeConfigIssues(w, err)
		return
	}
	if err := h.Store.Save(r.Context(), restaurantID, rs); err != nil {
		h.writeError(w, err, restaurantID)
		return
	}
	h.invalidate(r.Context(), restaurantID)
	common.JSON(w, status, map[string]any{"data": rule})
}

// decodeRule parses one rule of family into a single-rule set. Rules default
// to active when the payload omits isActive; coupon usage always starts at zero.
func decodeRule(family, id string, body []byte) (billing.RuleSet, any, error) {
	var flags struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.Unmarshal(body, &flags); err != nil {
		return billing.RuleSet{}, nil, err
	}
	active := flags.IsActive == nil || *flags.IsActive

	var rs billing.RuleSet
	switch family {
	case billing.FamilyPricing:
		var rule billing.PricingRule
		if err := json.Unmarshal(body, &rule); err != nil {
			return rs, nil, err
		}
		rule.ID, rule.IsActive = id, active
		rs.Pricing = []billing.PricingRule{rule}
		return rs, rule, nil
	case billing.FamilyTax:
		var rule billing.TaxRule
		if err := json.Unmarshal(body, &rule); err != nil {
			return rs, nil, err
		}
		rule.ID, rule.IsActive = id, active
		rs.Tax = []billing.TaxRule{rule}
		return rs, rule, nil
	case billing.FamilyDiscount:
		var rule billing.DiscountRule
		if err := json.Unmarshal(body, &rule); err != nil {
			return rs, nil, err
		}
		rule.ID, rule.IsActive = id, active
		rs.Discounts = []billing.DiscountRule{rule}
		return rs, rule, nil
	case billing.FamilyCoupon:
		var c billing.Coupon
		if err := json.Unmarshal(body, &c); err != nil {
			return rs, nil, err
		}
		c.ID, c.IsActive = id, active
		c.Code = billing.NormalizeCode(c.Code)
		c.UsageCount = 0
		rs.Coupons = []billing.Coupon{c}
		return rs, c, nil
	}
	return rs, nil, ErrUnknownFamily
}

func (h *AdminHandler) invalidate(ctx context.Context, restaurantID string) {
	if h.Invalidator == nil {
		return
	}
	if err := h.Invalidator.Invalidate(ctx, restaurantID); err != nil {
		h.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("invalidate rule cache after write")
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error, restaurantID string) {
	switch {
	case errors.Is(err, ErrUnknownFamily):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown rule family", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "rule or restaurant not found", nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case billing.IsConfigError(err):
		writeConfigIssues(w, err)
	default:
		h.Logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("rule admin request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to store rule", nil)
	}
}

func restaurantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantId"))
	if restaurantID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "restaurantId is required", nil)
		return "", false
	}
	return restaurantID, true
}
