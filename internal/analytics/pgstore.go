package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore aggregates the orders tables. Days are bucketed in Location.
type PGStore struct {
	Pool     *pgxpool.Pool
	Location *time.Location
}

func (p PGStore) zone() string {
	if p.Location == nil || p.Location == time.Local {
		return "UTC"
	}
	return p.Location.String()
}

// DailySales implements Store.
func (p PGStore) DailySales(ctx context.Context, restaurantID string, r Range) ([]DaySales, error) {
	rows, err := p.Pool.Query(ctx, `SELECT to_char(created_at AT TIME ZONE $4, 'YYYY-MM-DD') AS day,
       count(*), count(coupon_code), sum(subtotal), sum(discount_amount), sum(tax_amount), sum(total_amount)
FROM orders
WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> 'CANCELLED'
GROUP BY day ORDER BY day`, restaurantID, r.From, r.To, p.zone())
	if err != nil {
		return nil, fmt.Errorf("query daily sales: %w", err)
	}
	defer rows.Close()
	out := make([]DaySales, 0)
	for rows.Next() {
		var d DaySales
		if err := rows.Scan(&d.Day, &d.Orders, &d.CouponOrders, &d.Subtotal, &d.Discounts, &d.Tax, &d.Total); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopItems implements Store.
func (p PGStore) TopItems(ctx context.Context, restaurantID string, r Range, limit int) ([]ItemSales, error) {
	rows, err := p.Pool.Query(ctx, `SELECT oi.menu_item_id, m.name, sum(oi.quantity) AS qty, sum(oi.total_price)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE o.restaurant_id = $1 AND o.created_at >= $2 AND o.created_at < $3 AND o.status <> 'CANCELLED'
GROUP BY oi.menu_item_id, m.name
ORDER BY qty DESC, oi.menu_item_id
LIMIT $4`, restaurantID, r.From, r.To, limit)
	if err != nil {
		return nil, fmt.Errorf("query top items: %w", err)
	}
	defer rows.Close()
	out := make([]ItemSales, 0, limit)
	for rows.Next() {
		var it ItemSales
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &it.Revenue); err != nil {
			return nil, fmt.Errorf("scan top item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
