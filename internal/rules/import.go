package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/resto-billing/internal/billing"
)

// Import upserts every rule in rs for restaurantID inside tx. Coupon usage
// counters are left untouched for coupons that already exist. An id owned by
// another restaurant or a taken coupon code yields ErrConflict; a missing
// restaurant yields ErrNotFound.
func Import(ctx context.Context, tx pgx.Tx, restaurantID string, rs billing.RuleSet) error {
	if err := billing.ValidateRuleSet(rs); err != nil {
		return err
	}
	for _, r := range rs.Pricing {
		err := upsert(ctx, tx, `INSERT INTO pricing_rules (id, restaurant_id, name, priority, is_active, conditions, action)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, priority = EXCLUDED.priority,
  is_active = EXCLUDED.is_active, conditions = EXCLUDED.conditions, action = EXCLUDED.action
WHERE pricing_rules.restaurant_id = EXCLUDED.restaurant_id`,
			r.ID, restaurantID, r.Name, r.Priority, r.IsActive, jsonb(r.Condition), jsonb(r.Action))
		if err != nil {
			return fmt.Errorf("import pricing rule %s: %w", r.ID, err)
		}
	}
	for _, r := range rs.Tax {
		err := upsert(ctx, tx, `INSERT INTO tax_rules (id, restaurant_id, name, priority, is_active, rate, application_type, is_compound, conditions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, priority = EXCLUDED.priority, is_active = EXCLUDED.is_active,
  rate = EXCLUDED.rate, application_type = EXCLUDED.application_type, is_compound = EXCLUDED.is_compound,
  conditions = EXCLUDED.conditions
WHERE tax_rules.restaurant_id = EXCLUDED.restaurant_id`,
			r.ID, restaurantID, r.Name, r.Priority, r.IsActive, r.Rate, string(r.Application), r.IsCompound, jsonb(r.Condition))
		if err != nil {
			return fmt.Errorf("import tax rule %s: %w", r.ID, err)
		}
	}
	for _, r := range rs.Discounts {
		err := upsert(ctx, tx, `INSERT INTO discount_rules (id, restaurant_id, name, priority, is_active, type, value, max_discount, conditions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, priority = EXCLUDED.priority, is_active = EXCLUDED.is_active,
  type = EXCLUDED.type, value = EXCLUDED.value, max_discount = EXCLUDED.max_discount, conditions = EXCLUDED.conditions
WHERE discount_rules.restaurant_id = EXCLUDED.restaurant_id`,
			r.ID, restaurantID, r.Name, r.Priority, r.IsActive, string(r.Type), r.Value, r.MaxDiscount, jsonb(r.Condition))
		if err != nil {
			return fmt.Errorf("import discount rule %s: %w", r.ID, err)
		}
	}
	for _, c := range rs.Coupons {
		err := upsert(ctx, tx, `INSERT INTO coupons (id, restaurant_id, code, description, is_active, discount_type, discount_value,
  max_discount, start_date, end_date, usage_limit, usage_count, conditions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, description = EXCLUDED.description, is_active = EXCLUDED.is_active,
  discount_type = EXCLUDED.discount_type, discount_value = EXCLUDED.discount_value, max_discount = EXCLUDED.max_discount,
  start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, usage_limit = EXCLUDED.usage_limit,
  conditions = EXCLUDED.conditions
WHERE coupons.restaurant_id = EXCLUDED.restaurant_id`,
			c.ID, restaurantID, billing.NormalizeCode(c.Code), c.Description, c.IsActive, string(c.DiscountType), c.DiscountValue,
			c.MaxDiscount, c.StartDate, c.EndDate, c.UsageLimit, c.UsageCount, jsonb(c.Condition))
		if err != nil {
			return fmt.Errorf("import coupon %s: %w", c.ID, err)
		}
	}
	return nil
}

func jsonb(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func upsert(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id belongs to another restaurant", ErrConflict)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Detail)
		case "23503":
			return fmt.Errorf("%w: restaurant does not exist", ErrNotFound)
		}
	}
	return err
}
