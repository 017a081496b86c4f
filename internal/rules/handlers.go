package rules

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/resilience"
)

// Handler exposes rule snapshots and administrative cache control.
type Handler struct {
	Source      Source
	Invalidator Invalidator
	Logger      zerolog.Logger
}

type configIssue struct {
	Family string `json:"family"`
	RuleID string `json:"ruleId"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Snapshot returns the active rule set for a restaurant.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantId"))
	if restaurantID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "restaurantId is required", nil)
		return
	}
	rs, err := h.Source.Snapshot(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "restaurant not found", nil)
			return
		}
		if errors.Is(err, resilience.ErrOpenCircuit) {
			common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "rules temporarily unavailable", nil)
			return
		}
		h.Logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("load rule snapshot")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load rules", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rs})
}

// Invalidate drops the cached snapshot so the next calculation reads fresh rules.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantId"))
	if restaurantID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "restaurantId is required", nil)
		return
	}
	if h.Invalidator == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Invalidator.Invalidate(r.Context(), restaurantID); err != nil {
		h.Logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("invalidate rule cache")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to invalidate rules", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate checks a posted rule set and lists every malformed rule.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var rs billing.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := billing.ValidateRuleSet(rs); err != nil {
		writeConfigIssues(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]bool{"valid": true}})
}

func writeConfigIssues(w http.ResponseWriter, err error) {
	issues := make([]configIssue, 0)
	for _, ce := range billing.ConfigErrors(err) {
		reason := ""
		if ce.Err != nil {
			reason = ce.Err.Error()
		}
		issues = append(issues, configIssue{Family: ce.Family, RuleID: ce.RuleID, Field: ce.Field, Reason: reason})
	}
	common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RULES", "rule set contains malformed rules", issues)
}
