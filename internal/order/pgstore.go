package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, order_number, restaurant_id, customer_name, customer_email, customer_phone, status,
subtotal, tax_amount, discount_amount, total_amount, coupon_code, billing_details, created_at`

// PGStore persists orders in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// HasPriorOrder reports whether email already has a non-cancelled order at the restaurant.
func (p PGStore) HasPriorOrder(ctx context.Context, restaurantID, email string) (bool, error) {
	var exists bool
	err := p.Pool.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM orders
	WHERE restaurant_id = $1 AND lower(customer_email) = lower($2) AND status <> 'CANCELLED'
)`, restaurantID, email).Scan(&exists)
	return exists, err
}

// Create inserts the order and its lines. When redeem is set the coupon usage
// count is incremented in the same transaction, guarded by the usage limit.
func (p PGStore) Create(ctx context.Context, o Order, redeem *CouponRedemption) error {
	details, err := json.Marshal(o.Billing)
	if err != nil {
		return fmt.Errorf("encode billing details: %w", err)
	}
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if redeem != nil {
		tag, err := tx.Exec(ctx, `UPDATE coupons SET usage_count = usage_count + 1
WHERE restaurant_id = $1 AND upper(code) = upper($2) AND is_active
  AND (usage_limit IS NULL OR usage_count < usage_limit)`, redeem.RestaurantID, redeem.Code)
		if err != nil {
			return fmt.Errorf("redeem coupon: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCouponUnavailable
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.OrderNumber, o.RestaurantID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, string(o.Status),
		o.Subtotal, o.TaxAmount, o.DiscountAmount, o.TotalAmount, o.CouponCode, details, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, menu_item_id, quantity, unit_price, total_price, tax_amount, discount_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), o.ID, it.MenuItemID, it.Quantity, it.UnitPrice, it.TotalPrice, it.TaxAmount, it.DiscountAmount)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetByNumber loads an order and its lines.
func (p PGStore) GetByNumber(ctx context.Context, orderNumber string) (Order, error) {
	o, err := scanOrder(p.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := p.Pool.Query(ctx, `SELECT oi.menu_item_id, mi.name, oi.quantity, oi.unit_price, oi.total_price, oi.tax_amount, oi.discount_amount
FROM order_items oi JOIN menu_items mi ON mi.id = oi.menu_item_id
WHERE oi.order_id = $1 ORDER BY mi.name`, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	o.Items = make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.TaxAmount, &it.DiscountAmount); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// List returns a page of orders for a restaurant with line items taken from
// the stored billing details.
func (p PGStore) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	var status *string
	if f.Status != "" {
		s := string(f.Status)
		status = &s
	}
	var total int
	if err := p.Pool.QueryRow(ctx, `SELECT count(*) FROM orders
WHERE restaurant_id = $1 AND ($2::text IS NULL OR status = $2)`, f.RestaurantID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := p.Pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE restaurant_id = $1 AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC LIMIT $3 OFFSET $4`, f.RestaurantID, status, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	out := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		o.Items = itemsFromBilling(o)
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateStatus changes the status only if it still equals from.
func (p PGStore) UpdateStatus(ctx context.Context, orderNumber string, from, to Status) error {
	tag, err := p.Pool.Exec(ctx, `UPDATE orders SET status = $3 WHERE order_number = $1 AND status = $2`,
		orderNumber, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o       Order
		status  string
		details []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.RestaurantID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &status,
		&o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount, &o.CouponCode, &details, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(details, &o.Billing); err != nil {
		return o, fmt.Errorf("decode billing details for %s: %w", o.OrderNumber, err)
	}
	return o, nil
}
