package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one distinct menu item requested by the customer.
type CartItem struct {
	MenuItemID  string          `json:"menuItemId"`
	Name        string          `json:"name"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Quantity    int             `json:"quantity"`
	Category    string          `json:"category"`
	TaxCategory string          `json:"taxCategory,omitempty"`
}

// PriceActionType enumerates how a pricing rule transforms a unit price.
type PriceActionType string

const (
	PriceActionPercentage  PriceActionType = "PERCENTAGE"
	PriceActionFixedAmount PriceActionType = "FIXED_AMOUNT"
	PriceActionFixedPrice  PriceActionType = "FIXED_PRICE"
)

// DiscountType enumerates discount strategies shared by discount rules and coupons.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// TaxApplication enumerates how a tax rate is applied to a line.
type TaxApplication string

const (
	TaxPercentage  TaxApplication = "PERCENTAGE"
	TaxFixedAmount TaxApplication = "FIXED_AMOUNT"
)

// PriceAction is the payload of a pricing rule.
type PriceAction struct {
	Type  PriceActionType `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// PricingCondition restricts when a pricing rule applies to a line.
type PricingCondition struct {
	DayOfWeek   []int    `json:"dayOfWeek,omitempty"`
	TimeRange   string   `json:"timeRange,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	MenuItems   []string `json:"menuItems,omitempty"`
	MinQuantity *int     `json:"minQuantity,omitempty"`
	MaxQuantity *int     `json:"maxQuantity,omitempty"`
}

// TaxCondition restricts when a tax rule applies to a line.
type TaxCondition struct {
	Categories    []string         `json:"categories,omitempty"`
	TaxCategories []string         `json:"taxCategories,omitempty"`
	MenuItems     []string         `json:"menuItems,omitempty"`
	MinAmount     *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount     *decimal.Decimal `json:"maxAmount,omitempty"`
}

// DiscountCondition restricts when a discount rule applies to a line.
type DiscountCondition struct {
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount,omitempty"`
	MaxOrderAmount *decimal.Decimal `json:"maxOrderAmount,omitempty"`
	Categories     []string         `json:"categories,omitempty"`
	MenuItems      []string         `json:"menuItems,omitempty"`
	MinQuantity    *int             `json:"minQuantity,omitempty"`
	MaxQuantity    *int             `json:"maxQuantity,omitempty"`
	DayOfWeek      []int            `json:"dayOfWeek,omitempty"`
	TimeRange      string           `json:"timeRange,omitempty"`
	FirstOrderOnly bool             `json:"firstOrderOnly,omitempty"`
}

// CouponCondition restricts when a coupon can be redeemed. Category and menu item
// constraints are satisfied when at least one cart item matches.
type CouponCondition struct {
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount,omitempty"`
	Categories     []string         `json:"categories,omitempty"`
	MenuItems      []string         `json:"menuItems,omitempty"`
	FirstOrderOnly bool             `json:"firstOrderOnly,omitempty"`
}

// PricingRule adjusts the unit price of matching lines. At most one applies per line.
type PricingRule struct {
	ID        string           `json:"id"`
	Name      string           `json:"name,omitempty"`
	Priority  int              `json:"priority"`
	IsActive  bool             `json:"isActive"`
	Condition PricingCondition `json:"conditions"`
	Action    PriceAction      `json:"action"`
}

// TaxRule adds tax to matching lines. Rate doubles as the flat amount for
// fixed-amount rules.
type TaxRule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Priority    int             `json:"priority"`
	IsActive    bool            `json:"isActive"`
	Rate        decimal.Decimal `json:"rate"`
	Application TaxApplication  `json:"applicationType"`
	IsCompound  bool            `json:"isCompound"`
	Condition   TaxCondition    `json:"conditions"`
}

// DiscountRule reduces matching lines. All matching rules stack.
type DiscountRule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Priority    int               `json:"priority"`
	IsActive    bool              `json:"isActive"`
	Type        DiscountType      `json:"type"`
	Value       decimal.Decimal   `json:"value"`
	MaxDiscount *decimal.Decimal  `json:"maxDiscount,omitempty"`
	Condition   DiscountCondition `json:"conditions"`
}

// Coupon is a restaurant scoped order-level discount redeemed by code.
type Coupon struct {
	ID            string           `json:"id"`
	Code          string           `json:"code"`
	Description   string           `json:"description,omitempty"`
	IsActive      bool             `json:"isActive"`
	DiscountType  DiscountType     `json:"discountType"`
	DiscountValue decimal.Decimal  `json:"discountValue"`
	MaxDiscount   *decimal.Decimal `json:"maxDiscount,omitempty"`
	StartDate     *time.Time       `json:"startDate,omitempty"`
	EndDate       *time.Time       `json:"endDate,omitempty"`
	UsageLimit    *int             `json:"usageLimit,omitempty"`
	UsageCount    int              `json:"usageCount"`
	Condition     CouponCondition  `json:"conditions"`
}

// RuleSet is a consistent snapshot of one restaurant's billing rules.
type RuleSet struct {
	Pricing   []PricingRule  `json:"pricing"`
	Tax       []TaxRule      `json:"tax"`
	Discounts []DiscountRule `json:"discount"`
	Coupons   []Coupon       `json:"coupons"`
}

// Input carries the ambient facts of a calculation. A zero Timestamp means "now"
// according to the engine clock.
type Input struct {
	Timestamp     time.Time
	CustomerEmail string
	IsFirstOrder  bool
}

// EvalContext is the evaluation context shared by the discount, tax and coupon
// resolvers once pricing has been applied.
type EvalContext struct {
	CartItems     []CartItem
	Timestamp     time.Time
	Subtotal      decimal.Decimal
	CustomerEmail string
	IsFirstOrder  bool
}

// BillingLineItem is the priced view of one cart entry.
type BillingLineItem struct {
	MenuItemID          string          `json:"menuItemId"`
	Name                string          `json:"name"`
	Quantity            int             `json:"quantity"`
	BasePrice           decimal.Decimal `json:"basePrice"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountAmount      decimal.Decimal `json:"discountAmount"`
	TaxAmount           decimal.Decimal `json:"taxAmount"`
	TotalPrice          decimal.Decimal `json:"totalPrice"`
	AppliedPricingRules []string        `json:"appliedPricingRules"`
	AppliedTaxRules     []string        `json:"appliedTaxRules"`
	AppliedDiscounts    []string        `json:"appliedDiscounts"`
}

// Breakdown exposes every intermediate subtotal of a calculation.
type Breakdown struct {
	ItemSubtotal           decimal.Decimal `json:"itemSubtotal"`
	PricingAdjustments     decimal.Decimal `json:"pricingAdjustments"`
	SubtotalAfterPricing   decimal.Decimal `json:"subtotalAfterPricing"`
	ItemDiscounts          decimal.Decimal `json:"itemDiscounts"`
	SubtotalAfterDiscounts decimal.Decimal `json:"subtotalAfterDiscounts"`
	Taxes                  decimal.Decimal `json:"taxes"`
	CouponDiscount         decimal.Decimal `json:"couponDiscount"`
	FinalTotal             decimal.Decimal `json:"finalTotal"`
}

// BillingCalculation is the itemized result of a calculation.
type BillingCalculation struct {
	LineItems           []BillingLineItem `json:"lineItems"`
	Subtotal            decimal.Decimal   `json:"subtotal"`
	TotalTax            decimal.Decimal   `json:"totalTax"`
	TotalDiscount       decimal.Decimal   `json:"totalDiscount"`
	CouponDiscount      decimal.Decimal   `json:"couponDiscount"`
	GrandTotal          decimal.Decimal   `json:"grandTotal"`
	AppliedPricingRules []string          `json:"appliedPricingRules"`
	AppliedTaxRules     []string          `json:"appliedTaxRules"`
	AppliedDiscounts    []string          `json:"appliedDiscounts"`
	CouponCode          *string           `json:"couponCode"`
	Breakdown           Breakdown         `json:"breakdown"`
}
