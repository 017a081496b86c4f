package coupon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/coupon"
	"github.com/noah-isme/resto-billing/internal/rules"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type stubFinder struct {
	coupons map[string]billing.Coupon
	err     error
	asked   []string
}

func (s *stubFinder) Coupon(_ context.Context, restaurantID, code string) (billing.Coupon, error) {
	s.asked = append(s.asked, restaurantID+"/"+code)
	if s.err != nil {
		return billing.Coupon{}, s.err
	}
	c, ok := s.coupons[restaurantID+"/"+code]
	if !ok {
		return billing.Coupon{}, rules.ErrNotFound
	}
	return c, nil
}

func newFinder() *stubFinder {
	limit := 10
	past := now.Add(-24 * time.Hour)
	return &stubFinder{coupons: map[string]billing.Coupon{
		"r1/SAVE10": {ID: "c1", Code: "SAVE10", IsActive: true, DiscountType: billing.DiscountPercentage, DiscountValue: decimal.NewFromInt(10)},
		"r1/OFF":    {ID: "c2", Code: "OFF", DiscountType: billing.DiscountPercentage},
		"r1/OLD":    {ID: "c3", Code: "OLD", IsActive: true, EndDate: &past},
		"r1/MAXED":  {ID: "c4", Code: "MAXED", IsActive: true, UsageLimit: &limit, UsageCount: 10},
	}}
}

func TestServiceValidate(t *testing.T) {
	finder := newFinder()
	svc := &coupon.Service{Coupons: finder, Now: func() time.Time { return now }}
	ctx := context.Background()

	c, err := svc.Validate(ctx, "r1", " save10 ")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.Equal(t, "r1/SAVE10", finder.asked[0])

	cases := map[string]error{
		"OFF":     billing.ErrCouponInactive,
		"OLD":     billing.ErrCouponExpired,
		"MAXED":   billing.ErrCouponUsageLimitReached,
		"MISSING": coupon.ErrCouponNotFound,
		"   ":     coupon.ErrCouponNotFound,
	}
	for code, want := range cases {
		_, err := svc.Validate(ctx, "r1", code)
		require.ErrorIs(t, err, want, code)
	}

	finder.err = errors.New("db down")
	_, err = svc.Validate(ctx, "r1", "SAVE10")
	require.Error(t, err)
	require.Empty(t, coupon.Reason(err))
}

func TestReason(t *testing.T) {
	require.Equal(t, "EXPIRED", coupon.Reason(billing.ErrCouponExpired))
	require.Equal(t, "NOT_STARTED", coupon.Reason(billing.ErrCouponNotStarted))
	require.Equal(t, "NOT_FOUND", coupon.Reason(coupon.ErrCouponNotFound))
}

func post(t *testing.T, h *coupon.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", bytes.NewBufferString(body)))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestHandlerCheck(t *testing.T) {
	finder := newFinder()
	h := &coupon.Handler{
		Svc:      &coupon.Service{Coupons: finder, Now: func() time.Time { return now }},
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}

	rec, out := post(t, h, `{"restaurantId":"r1","code":"save10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	require.Equal(t, true, data["valid"])
	require.Equal(t, "SAVE10", data["coupon"].(map[string]any)["code"])

	rec, out = post(t, h, `{"restaurantId":"r1","code":"OLD"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data = out["data"].(map[string]any)
	require.Equal(t, false, data["valid"])
	require.Equal(t, "EXPIRED", data["error"].(map[string]any)["code"])
	require.NotContains(t, data, "coupon")

	rec, out = post(t, h, `{"restaurantId":"r1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", out["error"].(map[string]any)["code"])

	finder.err = errors.New("db down")
	rec, _ = post(t, h, `{"restaurantId":"r1","code":"SAVE10"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
