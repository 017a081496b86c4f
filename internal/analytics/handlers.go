package analytics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/common"
)

// Handler exposes sales reports to administrators.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Sales returns daily totals. The window is from/to (RFC 3339) or the last
// `days` days.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	restaurantID, rng, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.Sales(r.Context(), restaurantID, rng)
	if err != nil {
		h.Logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("sales report")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "failed to build sales report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// TopItems returns the best selling menu items in the window.
func (h *Handler) TopItems(w http.ResponseWriter, r *http.Request) {
	restaurantID, rng, ok := h.params(w, r)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := h.Svc.TopItems(r.Context(), restaurantID, rng, limit)
	if err != nil {
		h.Logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("top items report")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "failed to build top items report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (string, Range, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return "", Range{}, false
	}
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantId"))
	if restaurantID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "restaurantId is required", nil)
		return "", Range{}, false
	}
	q := r.URL.Query()
	var rng Range
	if fromStr, toStr := q.Get("from"), q.Get("to"); fromStr != "" && toStr != "" {
		var err error
		if rng.From, err = time.Parse(time.RFC3339, fromStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return "", Range{}, false
		}
		if rng.To, err = time.Parse(time.RFC3339, toStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return "", Range{}, false
		}
	} else {
		days := h.Svc.DefaultRange
		if days <= 0 {
			days = 30
		}
		if parsed, err := strconv.Atoi(q.Get("days")); err == nil && parsed > 0 {
			days = parsed
		}
		rng.To = h.Svc.now()
		rng.From = rng.To.AddDate(0, 0, -days)
	}
	if !rng.From.Before(rng.To) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
		return "", Range{}, false
	}
	return restaurantID, rng, true
}
