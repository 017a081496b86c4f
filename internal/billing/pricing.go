package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolvePricing prices one cart line using the first matching rule. Rules must
// already be active and sorted by descending priority.
func ResolvePricing(rules []PricingRule, item CartItem, at time.Time) BillingLineItem {
	unitPrice := item.BasePrice
	applied := []string{}
	for _, rule := range rules {
		ok, err := MatchPricing(rule.Condition, item, at)
		if err != nil || !ok {
			continue
		}
		unitPrice = ApplyPriceAction(unitPrice, rule.Action)
		applied = append(applied, rule.ID)
		break
	}
	if unitPrice.IsNegative() {
		unitPrice = decimal.Zero
	}
	return BillingLineItem{
		MenuItemID:          item.MenuItemID,
		Name:                item.Name,
		Quantity:            item.Quantity,
		BasePrice:           item.BasePrice,
		UnitPrice:           unitPrice,
		Subtotal:            unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		DiscountAmount:      decimal.Zero,
		TaxAmount:           decimal.Zero,
		TotalPrice:          decimal.Zero,
		AppliedPricingRules: applied,
		AppliedTaxRules:     []string{},
		AppliedDiscounts:    []string{},
	}
}

// ApplyPriceAction transforms a unit price. Unknown action types leave it unchanged.
func ApplyPriceAction(price decimal.Decimal, a PriceAction) decimal.Decimal {
	switch a.Type {
	case PriceActionPercentage:
		return price.Mul(hundred.Add(a.Value)).Div(hundred)
	case PriceActionFixedAmount:
		return price.Add(a.Value)
	case PriceActionFixedPrice:
		return a.Value
	default:
		return price
	}
}
