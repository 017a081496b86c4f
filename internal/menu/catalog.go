package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a restaurant or menu item does not exist.
	ErrNotFound = errors.New("menu: not found")
	// ErrConflict is returned when an item id belongs to another restaurant.
	ErrConflict = errors.New("menu: item belongs to another restaurant")
)

// Restaurant is a billing tenant.
type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog lists and maintains restaurants and their menus.
type Catalog interface {
	Restaurants(ctx context.Context) ([]Restaurant, error)
	Restaurant(ctx context.Context, id string) (Restaurant, error)
	Items(ctx context.Context, restaurantID, category string) ([]Item, error)
	SaveRestaurant(ctx context.Context, r Restaurant) (Restaurant, error)
	SaveItem(ctx context.Context, restaurantID string, it Item) error
	Retire(ctx context.Context, restaurantID, itemID string) error
}

// Restaurants lists every restaurant by name.
func (p PGRepo) Restaurants(ctx context.Context) ([]Restaurant, error) {
	rows, err := p.Pool.Query(ctx, `SELECT id, name, created_at FROM restaurants ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()
	out := make([]Restaurant, 0)
	for rows.Next() {
		var r Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Restaurant loads one restaurant.
func (p PGRepo) Restaurant(ctx context.Context, id string) (Restaurant, error) {
	var r Restaurant
	err := p.Pool.QueryRow(ctx, `SELECT id, name, created_at FROM restaurants WHERE id = $1`, id).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("load restaurant: %w", err)
	}
	return r, nil
}

// Items lists a restaurant's menu, unavailable items included, optionally
// narrowed to one category.
func (p PGRepo) Items(ctx context.Context, restaurantID, category string) ([]Item, error) {
	if _, err := p.Restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	rows, err := p.Pool.Query(ctx, `SELECT id, name, category, COALESCE(tax_category, ''), base_price, is_available
FROM menu_items WHERE restaurant_id = $1 AND ($2 = '' OR category = $2)
ORDER BY category, name, id`, restaurantID, category)
	if err != nil {
		return nil, fmt.Errorf("query menu: %w", err)
	}
	defer rows.Close()
	out := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.TaxCategory, &it.BasePrice, &it.IsAvailable); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SaveRestaurant creates the restaurant or renames it.
func (p PGRepo) SaveRestaurant(ctx context.Context, r Restaurant) (Restaurant, error) {
	err := p.Pool.QueryRow(ctx, `INSERT INTO restaurants (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
RETURNING created_at`, r.ID, r.Name).Scan(&r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("save restaurant %s: %w", r.ID, err)
	}
	return r, nil
}

// SaveItem upserts one menu item.
func (p PGRepo) SaveItem(ctx context.Context, restaurantID string, it Item) error {
	return pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		return Import(ctx, tx, restaurantID, []Item{it})
	})
}

// Retire marks an item unavailable. Items stay stored because placed orders
// reference them.
func (p PGRepo) Retire(ctx context.Context, restaurantID, itemID string) error {
	tag, err := p.Pool.Exec(ctx, `UPDATE menu_items SET is_available = FALSE WHERE id = $1 AND restaurant_id = $2`, itemID, restaurantID)
	if err != nil {
		return fmt.Errorf("retire menu item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: restaurant does not exist", ErrNotFound)
	}
	return err
}
