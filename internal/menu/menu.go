// Package menu keeps restaurants and their menus and resolves ordered menu
// items into billable cart items.
package menu

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/billing"
)

// Item is an orderable menu entry.
type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	TaxCategory string          `json:"taxCategory,omitempty"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	IsAvailable bool            `json:"isAvailable"`
}

// Line is one requested menu item and quantity.
type Line struct {
	MenuItemID string `json:"menuItemId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

// Repository finds available menu items.
type Repository interface {
	FindAvailable(ctx context.Context, restaurantID string, ids []string) (map[string]Item, error)
}

// PGRepo reads menu items from Postgres.
type PGRepo struct {
	Pool *pgxpool.Pool
}

// FindAvailable returns the requested items that belong to restaurantID and are
// currently available, keyed by id.
func (p PGRepo) FindAvailable(ctx context.Context, restaurantID string, ids []string) (map[string]Item, error) {
	rows, err := p.Pool.Query(ctx, `SELECT id, name, category, COALESCE(tax_category, ''), base_price, is_available
FROM menu_items WHERE restaurant_id = $1 AND id = ANY($2) AND is_available`, restaurantID, ids)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Item, len(ids))
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.TaxCategory, &it.BasePrice, &it.IsAvailable); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

// Import upserts the restaurant's menu items inside tx. An item id already used
// by another restaurant yields ErrConflict.
func Import(ctx context.Context, tx pgx.Tx, restaurantID string, items []Item) error {
	for _, it := range items {
		if it.ID == "" || it.BasePrice.IsNegative() {
			return fmt.Errorf("menu item %q: id and a non-negative base price are required", it.ID)
		}
		var taxCategory *string
		if it.TaxCategory != "" {
			taxCategory = &it.TaxCategory
		}
		tag, err := tx.Exec(ctx, `INSERT INTO menu_items (id, restaurant_id, name, category, tax_category, base_price, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, tax_category = EXCLUDED.tax_category,
  base_price = EXCLUDED.base_price, is_available = EXCLUDED.is_available
WHERE menu_items.restaurant_id = EXCLUDED.restaurant_id`,
			it.ID, restaurantID, it.Name, it.Category, taxCategory, it.BasePrice, it.IsAvailable)
		if err != nil {
			return fmt.Errorf("import menu item %s: %w", it.ID, classify(err))
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("import menu item %s: %w", it.ID, ErrConflict)
		}
	}
	return nil
}

// IDs lists the menu item ids referenced by lines in order.
func IDs(lines []Line) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.MenuItemID)
	}
	return ids
}

// BuildCart converts requested lines into cart items using the resolved menu.
// Unknown or unavailable items, repeated items and non-positive quantities are
// reported as *billing.InputError.
func BuildCart(lines []Line, items map[string]Item) ([]billing.CartItem, error) {
	cart := make([]billing.CartItem, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, &billing.InputError{MenuItemID: l.MenuItemID, Reason: "quantity must be at least 1"}
		}
		if _, dup := seen[l.MenuItemID]; dup {
			return nil, &billing.InputError{MenuItemID: l.MenuItemID, Reason: "item listed more than once"}
		}
		seen[l.MenuItemID] = struct{}{}
		it, ok := items[l.MenuItemID]
		if !ok || !it.IsAvailable {
			return nil, &billing.InputError{MenuItemID: l.MenuItemID, Reason: "item not available"}
		}
		cart = append(cart, billing.CartItem{
			MenuItemID:  it.ID,
			Name:        it.Name,
			BasePrice:   it.BasePrice,
			Quantity:    l.Quantity,
			Category:    it.Category,
			TaxCategory: it.TaxCategory,
		})
	}
	return cart, nil
}

// StaticRepo serves a fixed in-memory menu keyed by restaurant.
type StaticRepo map[string][]Item

// FindAvailable implements Repository.
func (s StaticRepo) FindAvailable(_ context.Context, restaurantID string, ids []string) (map[string]Item, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string]Item)
	for _, it := range s[restaurantID] {
		if _, ok := want[it.ID]; ok && it.IsAvailable {
			out[it.ID] = it
		}
	}
	return out, nil
}
