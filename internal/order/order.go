// Package order prices carts with the billing engine and persists orders.
package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/menu"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrCouponUnavailable is returned when the applied coupon was exhausted by a
	// concurrent order before this one committed.
	ErrCouponUnavailable = errors.New("coupon no longer available")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusPreparing:
		return 2
	case StatusReady:
		return 3
	case StatusDelivered:
		return 4
	case StatusCancelled:
		return -1
	default:
		return -2
	}
}

// CanTransition reports whether an order may move from s to next. Orders only
// move forward; cancellation is allowed until delivery.
func (s Status) CanTransition(next Status) bool {
	switch {
	case next.rank() == -2 || s.rank() < 0:
		return false
	case next == StatusCancelled:
		return s != StatusDelivered
	default:
		return next.rank() > s.rank()
	}
}

// PreviewRequest prices a cart without persisting anything.
type PreviewRequest struct {
	RestaurantID  string      `json:"restaurantId" validate:"required"`
	Items         []menu.Line `json:"items" validate:"required,min=1,dive"`
	CouponCode    string      `json:"couponCode,omitempty" validate:"omitempty,max=64"`
	CustomerEmail string      `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

// PlaceRequest creates an order.
type PlaceRequest struct {
	RestaurantID  string      `json:"restaurantId" validate:"required"`
	Items         []menu.Line `json:"items" validate:"required,min=1,dive"`
	CouponCode    string      `json:"couponCode,omitempty" validate:"omitempty,max=64"`
	CustomerName  string      `json:"customerName" validate:"required,max=200"`
	CustomerEmail string      `json:"customerEmail" validate:"required,email"`
	CustomerPhone string      `json:"customerPhone,omitempty" validate:"omitempty,max=32"`
}

// Item is a persisted order line.
type Item struct {
	MenuItemID     string          `json:"menuItemId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Order is a placed order with the billing calculation it was charged with.
type Order struct {
	ID             uuid.UUID                  `json:"id"`
	OrderNumber    string                     `json:"orderNumber"`
	RestaurantID   string                     `json:"restaurantId"`
	CustomerName   string                     `json:"customerName"`
	CustomerEmail  string                     `json:"customerEmail"`
	CustomerPhone  string                     `json:"customerPhone,omitempty"`
	Status         Status                     `json:"status"`
	Subtotal       decimal.Decimal            `json:"subtotal"`
	TaxAmount      decimal.Decimal            `json:"taxAmount"`
	DiscountAmount decimal.Decimal            `json:"discountAmount"`
	TotalAmount    decimal.Decimal            `json:"totalAmount"`
	CouponCode     *string                    `json:"couponCode"`
	Billing        billing.BillingCalculation `json:"billing"`
	Items          []Item                     `json:"items"`
	CreatedAt      time.Time                  `json:"createdAt"`
}

// CouponRedemption identifies the coupon whose usage count must be incremented
// together with the order insert.
type CouponRedemption struct {
	RestaurantID string
	Code         string
}

// ListFilter narrows a restaurant's order listing.
type ListFilter struct {
	RestaurantID string
	Status       Status
	Limit        int
	Offset       int
}

func newOrder(id uuid.UUID, number string, req PlaceRequest, calc *billing.BillingCalculation, now time.Time) Order {
	o := Order{
		ID:             id,
		OrderNumber:    number,
		RestaurantID:   req.RestaurantID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Status:         StatusPending,
		Subtotal:       calc.Subtotal,
		TaxAmount:      calc.TotalTax,
		DiscountAmount: calc.TotalDiscount.Add(calc.CouponDiscount),
		TotalAmount:    calc.GrandTotal,
		CouponCode:     calc.CouponCode,
		Billing:        *calc,
		CreatedAt:      now,
	}
	o.Items = itemsFromBilling(o)
	return o
}

func itemsFromBilling(o Order) []Item {
	items := make([]Item, 0, len(o.Billing.LineItems))
	for _, li := range o.Billing.LineItems {
		items = append(items, Item{
			MenuItemID:     li.MenuItemID,
			Name:           li.Name,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
			TotalPrice:     li.TotalPrice,
			TaxAmount:      li.TaxAmount,
			DiscountAmount: li.DiscountAmount,
		})
	}
	return items
}
