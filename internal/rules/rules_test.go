package rules_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/resilience"
	"github.com/noah-isme/resto-billing/internal/rules"
)

type countingSource struct {
	sets  map[string]billing.RuleSet
	calls int
	err   error
}

func (s *countingSource) Snapshot(_ context.Context, restaurantID string) (billing.RuleSet, error) {
	s.calls++
	if s.err != nil {
		return billing.RuleSet{}, s.err
	}
	rs, ok := s.sets[restaurantID]
	if !ok {
		return billing.RuleSet{}, rules.ErrNotFound
	}
	return rs, nil
}

func sampleSet() billing.RuleSet {
	limit := 10
	return billing.RuleSet{
		Pricing: []billing.PricingRule{{ID: "happy", Priority: 10, IsActive: true,
			Condition: billing.PricingCondition{TimeRange: "17:00-19:00", DayOfWeek: []int{1, 2, 3}},
			Action:    billing.PriceAction{Type: billing.PriceActionPercentage, Value: decimal.RequireFromString("-20")}}},
		Tax: []billing.TaxRule{{ID: "vat", IsActive: true, Rate: decimal.RequireFromString("8.5"), Application: billing.TaxPercentage}},
		Coupons: []billing.Coupon{{ID: "c1", Code: "SAVE10", IsActive: true, DiscountType: billing.DiscountPercentage,
			DiscountValue: decimal.RequireFromString("10"), UsageLimit: &limit}},
	}
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedSourceServesFromCache(t *testing.T) {
	inner := &countingSource{sets: map[string]billing.RuleSet{"r1": sampleSet()}}
	src := rules.CachedSource{Source: inner, Cache: rules.NewCache(newRedis(t), time.Minute), Logger: zerolog.Nop()}
	ctx := context.Background()

	first, err := src.Snapshot(ctx, "r1")
	require.NoError(t, err)
	second, err := src.Snapshot(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, "happy", second.Pricing[0].ID)
	require.True(t, first.Tax[0].Rate.Equal(second.Tax[0].Rate))
	require.Equal(t, 10, *second.Coupons[0].UsageLimit)

	require.NoError(t, src.Invalidate(ctx, "r1"))
	_, err = src.Snapshot(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	inner := &countingSource{err: errors.New("db down")}
	src := rules.CachedSource{Source: inner, Cache: rules.NewCache(newRedis(t), time.Minute), Logger: zerolog.Nop()}
	_, err := src.Snapshot(context.Background(), "r1")
	require.Error(t, err)
	_, err = src.Snapshot(context.Background(), "r1")
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedSourceWithoutRedisFallsThrough(t *testing.T) {
	inner := &countingSource{sets: map[string]billing.RuleSet{"r1": sampleSet()}}
	src := rules.CachedSource{Source: inner, Logger: zerolog.Nop()}
	_, err := src.Snapshot(context.Background(), "r1")
	require.NoError(t, err)
	_, err = src.Snapshot(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

const pack = `
restaurants:
  bistro:
    pricing:
      - id: happy-hour
        priority: 10
        isActive: true
        conditions:
          timeRange: "17:00-19:00"
          categories: [drinks]
        action:
          type: PERCENTAGE
          value: -20
    tax:
      - id: vat
        isActive: true
        rate: 8.25
        applicationType: PERCENTAGE
        isCompound: false
    discount:
      - id: bulk
        isActive: true
        type: PERCENTAGE
        value: 15
        maxDiscount: 20
        conditions:
          minQuantity: 3
    coupons:
      - id: c1
        code: Welcome
        isActive: true
        discountType: FIXED_AMOUNT
        discountValue: 5
        endDate: "2030-01-01T00:00:00Z"
        conditions:
          firstOrderOnly: true
`

func TestParseYAMLRulePack(t *testing.T) {
	src, err := rules.ParseYAML([]byte(pack))
	require.NoError(t, err)

	rs, err := src.Snapshot(context.Background(), "bistro")
	require.NoError(t, err)
	require.Len(t, rs.Pricing, 1)
	require.Equal(t, billing.PriceActionPercentage, rs.Pricing[0].Action.Type)
	require.True(t, rs.Pricing[0].Action.Value.Equal(decimal.NewFromInt(-20)))
	require.True(t, rs.Tax[0].Rate.Equal(decimal.RequireFromString("8.25")))
	require.Equal(t, 3, *rs.Discounts[0].Condition.MinQuantity)
	require.True(t, rs.Discounts[0].MaxDiscount.Equal(decimal.NewFromInt(20)))
	require.True(t, rs.Coupons[0].Condition.FirstOrderOnly)
	require.Equal(t, 2030, rs.Coupons[0].EndDate.Year())

	coupon, err := src.Coupon(context.Background(), "bistro", "welcome")
	require.NoError(t, err)
	require.Equal(t, "c1", coupon.ID)

	_, err = src.Coupon(context.Background(), "bistro", "nope")
	require.ErrorIs(t, err, rules.ErrNotFound)
	_, err = src.Snapshot(context.Background(), "elsewhere")
	require.ErrorIs(t, err, rules.ErrNotFound)
}

func TestParseYAMLRejectsMalformedRules(t *testing.T) {
	bad := strings.Replace(pack, `"17:00-19:00"`, `"5pm-7pm"`, 1)
	_, err := rules.ParseYAML([]byte(bad))
	require.Error(t, err)
	require.True(t, billing.IsConfigError(err))
	require.Contains(t, err.Error(), "happy-hour")
}

func withRestaurant(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("restaurantId", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerSnapshot(t *testing.T) {
	h := &rules.Handler{Source: &countingSource{sets: map[string]billing.RuleSet{"r1": sampleSet()}}, Logger: zerolog.Nop()}

	rr := httptest.NewRecorder()
	h.Snapshot(rr, withRestaurant(httptest.NewRequest(http.MethodGet, "/", nil), "r1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"happy"`)

	rr = httptest.NewRecorder()
	h.Snapshot(rr, withRestaurant(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	h.Source = &countingSource{err: errors.New("boom")}
	rr = httptest.NewRecorder()
	h.Snapshot(rr, withRestaurant(httptest.NewRequest(http.MethodGet, "/", nil), "r1"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandlerInvalidate(t *testing.T) {
	inner := &countingSource{sets: map[string]billing.RuleSet{"r1": sampleSet()}}
	cached := rules.CachedSource{Source: inner, Cache: rules.NewCache(newRedis(t), time.Minute), Logger: zerolog.Nop()}
	_, err := cached.Snapshot(context.Background(), "r1")
	require.NoError(t, err)

	h := &rules.Handler{Source: cached, Invalidator: cached, Logger: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.Invalidate(rr, withRestaurant(httptest.NewRequest(http.MethodPost, "/", nil), "r1"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err = cached.Snapshot(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestHandlerValidate(t *testing.T) {
	h := &rules.Handler{Logger: zerolog.Nop()}
	body := `{"tax":[{"id":"t1","rate":5,"applicationType":"PER_UNIT","isActive":true}],"coupons":[{"id":"c1","code":"OK","discountType":"PERCENTAGE","discountValue":5}]}`
	rr := httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"ruleId":"t1"`)
	require.NotContains(t, rr.Body.String(), `"ruleId":"c1"`)

	rr = httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Validate(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGuardedSourceOpensOnStoreErrors(t *testing.T) {
	inner := &countingSource{sets: map[string]billing.RuleSet{"r1": sampleSet()}}
	breaker := resilience.NewBreaker("rules", 2, 0.5, time.Minute)
	src := rules.GuardedSource{Source: inner, Breaker: breaker}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := src.Snapshot(ctx, "missing")
		require.ErrorIs(t, err, rules.ErrNotFound)
	}

	require.Equal(t, resilience.Closed, breaker.State())

	inner.err = errors.New("db down")
	for i := 0; i < 10 && breaker.State() != resilience.Open; i++ {
		_, _ = src.Snapshot(ctx, "r1")
	}
	require.Equal(t, resilience.Open, breaker.State())
	calls := inner.calls
	_, err := src.Snapshot(ctx, "r1")
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, calls, inner.calls)

	rr := httptest.NewRecorder()
	h := &rules.Handler{Source: src, Logger: zerolog.Nop()}
	h.Snapshot(rr, withRestaurant(httptest.NewRequest(http.MethodGet, "/", nil), "r1"))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
