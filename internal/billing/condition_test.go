package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-billing/internal/billing"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-01-02 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTimeRangeWraparound(t *testing.T) {
	window, err := billing.ParseTimeRange("22:00-02:00")
	require.NoError(t, err)
	require.True(t, window.Contains(at("23:30")))
	require.True(t, window.Contains(at("01:00")))
	require.True(t, window.Contains(at("22:00")))
	require.True(t, window.Contains(at("02:00")))
	require.False(t, window.Contains(at("12:00")))
	require.False(t, window.Contains(at("02:01")))
}

func TestTimeRangeSameDay(t *testing.T) {
	window, err := billing.ParseTimeRange("16:00-19:00")
	require.NoError(t, err)
	require.True(t, window.Contains(at("16:00")))
	require.True(t, window.Contains(at("19:00")))
	require.False(t, window.Contains(at("19:01")))
	require.False(t, window.Contains(at("15:59")))
}

func TestParseTimeRangeRejectsMalformed(t *testing.T) {
	for _, value := range []string{"", "1600-1900", "16:00", "ab:00-19:00", "16:00-19:xx", "25:00-26:00", "16:00-19"} {
		_, err := billing.ParseTimeRange(value)
		require.Error(t, err, value)
	}
}

func TestMatchPricing(t *testing.T) {
	item := billing.CartItem{MenuItemID: "latte", Category: "beverage", Quantity: 3, BasePrice: decimal.NewFromInt(4)}
	tuesday := at("17:00")
	two, five := 2, 5

	cases := []struct {
		name string
		cond billing.PricingCondition
		want bool
	}{
		{"empty condition matches", billing.PricingCondition{}, true},
		{"day matches", billing.PricingCondition{DayOfWeek: []int{1, 2, 3}}, true},
		{"day excluded", billing.PricingCondition{DayOfWeek: []int{0, 6}}, false},
		{"inside window", billing.PricingCondition{TimeRange: "16:00-19:00"}, true},
		{"outside window", billing.PricingCondition{TimeRange: "08:00-11:00"}, false},
		{"category matches", billing.PricingCondition{Categories: []string{"beverage"}}, true},
		{"category excluded", billing.PricingCondition{Categories: []string{"dessert"}}, false},
		{"menu item excluded", billing.PricingCondition{MenuItems: []string{"mocha"}}, false},
		{"quantity within bounds", billing.PricingCondition{MinQuantity: &two, MaxQuantity: &five}, true},
		{"quantity below min", billing.PricingCondition{MinQuantity: &five}, false},
		{"quantity above max", billing.PricingCondition{MaxQuantity: &two}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := billing.MatchPricing(tc.cond, item, tuesday)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}

	_, err := billing.MatchPricing(billing.PricingCondition{TimeRange: "soon"}, item, tuesday)
	require.Error(t, err)
}

func TestMatchTax(t *testing.T) {
	item := billing.CartItem{MenuItemID: "wine", Category: "beverage", TaxCategory: "alcohol", Quantity: 1}
	low, high := decimal.NewFromInt(10), decimal.NewFromInt(50)

	require.True(t, billing.MatchTax(billing.TaxCondition{}, item, decimal.NewFromInt(20)))
	require.True(t, billing.MatchTax(billing.TaxCondition{TaxCategories: []string{"alcohol"}}, item, decimal.NewFromInt(20)))
	require.False(t, billing.MatchTax(billing.TaxCondition{TaxCategories: []string{"food"}}, item, decimal.NewFromInt(20)))
	require.True(t, billing.MatchTax(billing.TaxCondition{MinAmount: &low, MaxAmount: &high}, item, decimal.NewFromInt(20)))
	require.False(t, billing.MatchTax(billing.TaxCondition{MinAmount: &low}, item, decimal.NewFromInt(5)))
	require.False(t, billing.MatchTax(billing.TaxCondition{MaxAmount: &high}, item, decimal.NewFromInt(60)))

	untagged := billing.CartItem{MenuItemID: "bread", Category: "food"}
	require.False(t, billing.MatchTax(billing.TaxCondition{TaxCategories: []string{"alcohol"}}, untagged, decimal.NewFromInt(20)))
}

func TestMatchDiscount(t *testing.T) {
	item := billing.CartItem{MenuItemID: "burger", Category: "mains", Quantity: 2}
	minOrder := decimal.NewFromInt(50)
	ec := billing.EvalContext{Timestamp: at("12:00"), Subtotal: decimal.NewFromInt(60)}

	ok, err := billing.MatchDiscount(billing.DiscountCondition{MinOrderAmount: &minOrder}, ec, item)
	require.NoError(t, err)
	require.True(t, ok)

	ec.Subtotal = decimal.NewFromInt(40)
	ok, err = billing.MatchDiscount(billing.DiscountCondition{MinOrderAmount: &minOrder}, ec, item)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = billing.MatchDiscount(billing.DiscountCondition{FirstOrderOnly: true}, ec, item)
	require.NoError(t, err)
	require.False(t, ok)

	ec.IsFirstOrder = true
	ok, err = billing.MatchDiscount(billing.DiscountCondition{FirstOrderOnly: true, Categories: []string{"mains"}}, ec, item)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchCouponRequiresOneMatchingItem(t *testing.T) {
	ec := billing.EvalContext{
		CartItems: []billing.CartItem{
			{MenuItemID: "fries", Category: "sides"},
			{MenuItemID: "cola", Category: "beverage"},
		},
		Subtotal: decimal.NewFromInt(30),
	}
	require.True(t, billing.MatchCoupon(billing.CouponCondition{Categories: []string{"beverage", "dessert"}}, ec))
	require.False(t, billing.MatchCoupon(billing.CouponCondition{Categories: []string{"dessert"}}, ec))
	require.True(t, billing.MatchCoupon(billing.CouponCondition{MenuItems: []string{"fries"}}, ec))
	require.False(t, billing.MatchCoupon(billing.CouponCondition{MenuItems: []string{"pie"}}, ec))

	minOrder := decimal.NewFromInt(35)
	require.False(t, billing.MatchCoupon(billing.CouponCondition{MinOrderAmount: &minOrder}, ec))
}
