package billing_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/resto-billing/internal/billing"
)

// 2024-01-02 was a Tuesday.
var tuesdayFivePM = time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC)

func TestHappyHourScenario(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "iced-tea", Name: "Iced Tea", Category: "beverage", BasePrice: dec("4"), Quantity: 2}}
	rules := billing.RuleSet{Pricing: []billing.PricingRule{{
		ID: "happy-hour", Priority: 10, IsActive: true,
		Condition: billing.PricingCondition{DayOfWeek: []int{1, 2, 3, 4, 5}, TimeRange: "16:00-19:00", Categories: []string{"beverage"}},
		Action:    billing.PriceAction{Type: billing.PriceActionPercentage, Value: dec("-25")},
	}}}

	calc, err := billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	require.Len(t, calc.LineItems, 1)
	requireDecimal(t, "3.00", calc.LineItems[0].UnitPrice)
	requireDecimal(t, "6.00", calc.LineItems[0].Subtotal)
	require.Equal(t, []string{"happy-hour"}, calc.AppliedPricingRules)
	requireDecimal(t, "8", calc.Breakdown.ItemSubtotal)
	requireDecimal(t, "-2", calc.Breakdown.PricingAdjustments)
	requireDecimal(t, "6", calc.GrandTotal)

	calc, err = billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM.Add(3 * time.Hour)})
	require.NoError(t, err)
	requireDecimal(t, "4", calc.LineItems[0].UnitPrice)
	require.Empty(t, calc.AppliedPricingRules)
}

func TestBulkDiscountScenario(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "platter", Category: "mains", BasePrice: dec("20"), Quantity: 3}}
	rules := billing.RuleSet{Discounts: []billing.DiscountRule{{
		ID: "bulk", IsActive: true, Type: billing.DiscountPercentage, Value: dec("15"), MaxDiscount: decPtr("20"),
		Condition: billing.DiscountCondition{MinOrderAmount: decPtr("50")},
	}}}

	calc, err := billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	requireDecimal(t, "9", calc.LineItems[0].DiscountAmount)
	requireDecimal(t, "9", calc.TotalDiscount)
	requireDecimal(t, "51", calc.Breakdown.SubtotalAfterDiscounts)
	require.Equal(t, []string{"bulk"}, calc.AppliedDiscounts)
}

func TestCompoundTaxThroughEngine(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "tasting-menu", Category: "mains", BasePrice: dec("100"), Quantity: 1}}
	rules := billing.RuleSet{Tax: []billing.TaxRule{
		{ID: "state", Priority: 2, IsActive: true, Rate: dec("8"), Application: billing.TaxPercentage},
		{ID: "city", Priority: 1, IsActive: true, Rate: dec("5"), Application: billing.TaxPercentage, IsCompound: true},
	}}
	calc, err := billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	requireDecimal(t, "13.40", calc.TotalTax)
	requireDecimal(t, "113.40", calc.GrandTotal)
	requireDecimal(t, "113.40", calc.LineItems[0].TotalPrice)
	require.Equal(t, []string{"state", "city"}, calc.AppliedTaxRules)
}

func TestFullPipelineWithCoupon(t *testing.T) {
	items := []billing.CartItem{
		{MenuItemID: "burger", Name: "Burger", Category: "mains", TaxCategory: "food", BasePrice: dec("12.99"), Quantity: 2},
		{MenuItemID: "beer", Name: "Beer", Category: "beverage", TaxCategory: "alcohol", BasePrice: dec("6"), Quantity: 1},
	}
	end := tuesdayFivePM.Add(24 * time.Hour)
	rules := billing.RuleSet{
		Pricing: []billing.PricingRule{{
			ID: "beer-promo", IsActive: true, Condition: billing.PricingCondition{MenuItems: []string{"beer"}},
			Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("5")},
		}},
		Discounts: []billing.DiscountRule{{
			ID: "mains-1off", IsActive: true, Type: billing.DiscountFixedAmount, Value: dec("1"),
			Condition: billing.DiscountCondition{Categories: []string{"mains"}},
		}},
		Tax: []billing.TaxRule{
			{ID: "food-tax", IsActive: true, Rate: dec("8"), Application: billing.TaxPercentage, Condition: billing.TaxCondition{TaxCategories: []string{"food"}}},
			{ID: "alcohol-tax", IsActive: true, Rate: dec("10"), Application: billing.TaxPercentage, Condition: billing.TaxCondition{TaxCategories: []string{"alcohol"}}},
		},
		Coupons: []billing.Coupon{{
			ID: "cpn", Code: "WELCOME", IsActive: true, DiscountType: billing.DiscountFixedAmount, DiscountValue: dec("2"), EndDate: &end,
		}},
	}

	calc, err := billing.Calculate(items, rules, "welcome", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)

	burger, beer := calc.LineItems[0], calc.LineItems[1]
	requireDecimal(t, "25.98", burger.Subtotal)
	requireDecimal(t, "1", burger.DiscountAmount)
	requireDecimal(t, "1.9984", burger.TaxAmount)
	requireDecimal(t, "26.9784", burger.TotalPrice)
	requireDecimal(t, "5", beer.UnitPrice)
	requireDecimal(t, "0.5", beer.TaxAmount)

	requireDecimal(t, "30.98", calc.Subtotal)
	requireDecimal(t, "31.98", calc.Breakdown.ItemSubtotal)
	requireDecimal(t, "-1", calc.Breakdown.PricingAdjustments)
	requireDecimal(t, "29.98", calc.Breakdown.SubtotalAfterDiscounts)
	requireDecimal(t, "2.4984", calc.TotalTax)
	requireDecimal(t, "2", calc.CouponDiscount)
	requireDecimal(t, "30.4784", calc.GrandTotal)
	requireDecimal(t, "30.4784", calc.Breakdown.FinalTotal)
	require.NotNil(t, calc.CouponCode)
	require.Equal(t, "WELCOME", *calc.CouponCode)
	require.Equal(t, []string{"beer-promo"}, calc.AppliedPricingRules)
	require.Equal(t, []string{"mains-1off"}, calc.AppliedDiscounts)
	require.Equal(t, []string{"food-tax", "alcohol-tax"}, calc.AppliedTaxRules)
}

func TestExpiredCouponNeverDiscounts(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "pie", Category: "dessert", BasePrice: dec("8"), Quantity: 1}}
	ended := tuesdayFivePM.Add(-time.Minute)
	rules := billing.RuleSet{Coupons: []billing.Coupon{{
		ID: "old", Code: "OLD", IsActive: true, DiscountType: billing.DiscountPercentage, DiscountValue: dec("50"), EndDate: &ended,
	}}}
	calc, err := billing.Calculate(items, rules, "OLD", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	requireDecimal(t, "0", calc.CouponDiscount)
	require.Nil(t, calc.CouponCode)
	requireDecimal(t, "8", calc.GrandTotal)
}

func TestEngineDropsInactiveAndSortsByPriority(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "salad", Category: "starters", BasePrice: dec("10"), Quantity: 1}}
	rules := billing.RuleSet{Pricing: []billing.PricingRule{
		{ID: "low", Priority: 1, IsActive: true, Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("9")}},
		{ID: "disabled", Priority: 100, IsActive: false, Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("1")}},
		{ID: "high", Priority: 5, IsActive: true, Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("7")}},
	}}
	calc, err := billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	require.Equal(t, []string{"high"}, calc.AppliedPricingRules)
	requireDecimal(t, "7", calc.LineItems[0].UnitPrice)
	require.Equal(t, "low", rules.Pricing[0].ID, "caller slice must not be reordered")
}

func TestEngineSkipsMalformedRules(t *testing.T) {
	var logs bytes.Buffer
	items := []billing.CartItem{{MenuItemID: "wings", Category: "starters", BasePrice: dec("10"), Quantity: 1}}
	rules := billing.RuleSet{
		Pricing: []billing.PricingRule{
			{ID: "broken", Priority: 10, IsActive: true, Condition: billing.PricingCondition{TimeRange: "late"},
				Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("1")}},
			{ID: "fine", Priority: 1, IsActive: true, Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("8")}},
		},
		Tax: []billing.TaxRule{{ID: "unknown-app", IsActive: true, Rate: dec("5"), Application: "PER_UNIT"}},
	}
	engine := billing.NewEngine(rules, billing.WithLogger(zerolog.New(&logs)))
	require.Len(t, engine.Skipped(), 2)
	require.True(t, billing.IsConfigError(engine.Skipped()[0]))
	require.Contains(t, logs.String(), "billing rule skipped")

	calc, err := engine.Calculate(items, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	require.Equal(t, []string{"fine"}, calc.AppliedPricingRules)
	require.Empty(t, calc.AppliedTaxRules)
}

func TestEngineRejectsInvalidCart(t *testing.T) {
	cases := map[string][]billing.CartItem{
		"zero quantity":  {{MenuItemID: "a", BasePrice: dec("1"), Quantity: 0}},
		"negative price": {{MenuItemID: "a", BasePrice: dec("-1"), Quantity: 1}},
		"missing id":     {{MenuItemID: " ", BasePrice: dec("1"), Quantity: 1}},
		"duplicate line": {{MenuItemID: "a", BasePrice: dec("1"), Quantity: 1}, {MenuItemID: "a", BasePrice: dec("1"), Quantity: 2}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			calc, err := billing.Calculate(items, billing.RuleSet{}, "", billing.Input{})
			require.Error(t, err)
			require.True(t, billing.IsInputError(err))
			require.Nil(t, calc)
		})
	}
}

func TestEngineUsesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	items := []billing.CartItem{{MenuItemID: "coffee", Category: "beverage", BasePrice: dec("5"), Quantity: 1}}
	rules := billing.RuleSet{Pricing: []billing.PricingRule{{
		ID: "breakfast", IsActive: true, Condition: billing.PricingCondition{TimeRange: "07:00-10:00"},
		Action: billing.PriceAction{Type: billing.PriceActionFixedPrice, Value: dec("3")},
	}}}
	// 01:30 UTC is 08:30 in UTC+7.
	clock := func() time.Time { return time.Date(2024, 1, 2, 1, 30, 0, 0, time.UTC) }

	engine := billing.NewEngine(rules, billing.WithClock(clock), billing.WithLocation(loc))
	calc, err := engine.Calculate(items, "", billing.Input{})
	require.NoError(t, err)
	require.Equal(t, []string{"breakfast"}, calc.AppliedPricingRules)

	calc, err = billing.NewEngine(rules, billing.WithClock(clock)).Calculate(items, "", billing.Input{})
	require.NoError(t, err)
	require.Empty(t, calc.AppliedPricingRules)
}

func TestEmptyCartProducesZeroBill(t *testing.T) {
	calc, err := billing.Calculate(nil, billing.RuleSet{}, "ANY", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)
	require.Empty(t, calc.LineItems)
	requireDecimal(t, "0", calc.GrandTotal)
	require.Nil(t, calc.CouponCode)
}

func TestCalculationJSONShape(t *testing.T) {
	items := []billing.CartItem{{MenuItemID: "m1", Name: "Pho", Category: "mains", BasePrice: dec("12.99"), Quantity: 2}}
	rules := billing.RuleSet{Tax: []billing.TaxRule{{ID: "tax1", IsActive: true, Rate: dec("8"), Application: billing.TaxPercentage}}}
	calc, err := billing.Calculate(items, rules, "", billing.Input{Timestamp: tuesdayFivePM})
	require.NoError(t, err)

	raw, err := json.Marshal(calc)
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(raw, &shape))
	for _, key := range []string{"lineItems", "subtotal", "totalTax", "totalDiscount", "couponDiscount", "grandTotal",
		"appliedPricingRules", "appliedTaxRules", "appliedDiscounts", "couponCode", "breakdown"} {
		require.Contains(t, shape, key)
	}
	require.Nil(t, shape["couponCode"])
	require.Equal(t, []any{}, shape["appliedPricingRules"])
	require.Equal(t, []any{"tax1"}, shape["appliedTaxRules"])
	breakdown := shape["breakdown"].(map[string]any)
	for _, key := range []string{"itemSubtotal", "pricingAdjustments", "subtotalAfterPricing", "itemDiscounts",
		"subtotalAfterDiscounts", "taxes", "couponDiscount", "finalTotal"} {
		require.Contains(t, breakdown, key)
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	items, rules, code := randomScenario(rand.New(rand.NewSource(7)))
	first, err := billing.Calculate(items, rules, code, billing.Input{Timestamp: tuesdayFivePM, IsFirstOrder: true})
	require.NoError(t, err)
	second, err := billing.Calculate(items, rules, code, billing.Input{Timestamp: tuesdayFivePM, IsFirstOrder: true})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		items, rules, code := randomScenario(rng)
		ts := tuesdayFivePM.Add(time.Duration(rng.Intn(7*24*60)) * time.Minute)
		calc, err := billing.Calculate(items, rules, code, billing.Input{Timestamp: ts, IsFirstOrder: rng.Intn(2) == 0})
		require.NoError(t, err)

		identity := calc.Breakdown.SubtotalAfterDiscounts.Add(calc.TotalTax).Sub(calc.CouponDiscount)
		require.True(t, identity.Equal(calc.GrandTotal), "scenario %d: total identity", i)
		require.True(t, calc.CouponDiscount.LessThanOrEqual(calc.Breakdown.SubtotalAfterDiscounts), "scenario %d: coupon cap", i)
		require.False(t, calc.GrandTotal.IsNegative(), "scenario %d: grand total %s", i, calc.GrandTotal)
		for _, line := range calc.LineItems {
			require.True(t, line.DiscountAmount.LessThanOrEqual(line.Subtotal), "scenario %d: line discount", i)
			require.False(t, line.DiscountAmount.IsNegative())
			require.LessOrEqual(t, len(line.AppliedPricingRules), 1)
		}
	}
}

func randomScenario(rng *rand.Rand) ([]billing.CartItem, billing.RuleSet, string) {
	categories := []string{"mains", "beverage", "dessert"}
	money := func(maxCents int) decimal.Decimal {
		return decimal.New(int64(rng.Intn(maxCents)), -2)
	}

	var items []billing.CartItem
	for i := 0; i < 1+rng.Intn(4); i++ {
		items = append(items, billing.CartItem{
			MenuItemID: fmt.Sprintf("item-%d", i),
			Category:   categories[rng.Intn(len(categories))],
			BasePrice:  money(3000),
			Quantity:   1 + rng.Intn(5),
		})
	}

	var rs billing.RuleSet
	for i := 0; i < rng.Intn(4); i++ {
		kinds := []billing.PriceActionType{billing.PriceActionPercentage, billing.PriceActionFixedAmount, billing.PriceActionFixedPrice}
		value := money(2000)
		if rng.Intn(2) == 0 {
			value = value.Neg()
		}
		rs.Pricing = append(rs.Pricing, billing.PricingRule{
			ID: fmt.Sprintf("p%d", i), Priority: rng.Intn(10), IsActive: rng.Intn(5) > 0,
			Condition: billing.PricingCondition{Categories: []string{categories[rng.Intn(len(categories))]}},
			Action:    billing.PriceAction{Type: kinds[rng.Intn(len(kinds))], Value: value},
		})
	}
	for i := 0; i < rng.Intn(4); i++ {
		kind := billing.DiscountPercentage
		if rng.Intn(2) == 0 {
			kind = billing.DiscountFixedAmount
		}
		rule := billing.DiscountRule{ID: fmt.Sprintf("d%d", i), Priority: rng.Intn(10), IsActive: true, Type: kind, Value: money(5000)}
		if rng.Intn(2) == 0 {
			rule.MaxDiscount = decPtr(money(1500).String())
		}
		if rng.Intn(3) == 0 {
			rule.Condition.FirstOrderOnly = true
		}
		rs.Discounts = append(rs.Discounts, rule)
	}
	for i := 0; i < rng.Intn(3); i++ {
		app := billing.TaxPercentage
		if rng.Intn(4) == 0 {
			app = billing.TaxFixedAmount
		}
		rs.Tax = append(rs.Tax, billing.TaxRule{
			ID: fmt.Sprintf("t%d", i), Priority: rng.Intn(10), IsActive: true,
			Rate: money(1500), Application: app, IsCompound: rng.Intn(3) == 0,
		})
	}
	code := ""
	if rng.Intn(2) == 0 {
		code = "promo"
		kind := billing.DiscountPercentage
		if rng.Intn(2) == 0 {
			kind = billing.DiscountFixedAmount
		}
		rs.Coupons = append(rs.Coupons, billing.Coupon{
			ID: "c", Code: "PROMO", IsActive: true, DiscountType: kind, DiscountValue: money(20000),
		})
	}
	return items, rs, code
}
