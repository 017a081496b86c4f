package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/obs"
)

const (
	pricingSelect = `SELECT id, name, priority, is_active, conditions, action
FROM pricing_rules WHERE restaurant_id = $1`
	taxSelect = `SELECT id, name, priority, is_active, rate, application_type, is_compound, conditions
FROM tax_rules WHERE restaurant_id = $1`
	discountSelect = `SELECT id, name, priority, is_active, type, value, max_discount, conditions
FROM discount_rules WHERE restaurant_id = $1`
	couponColumns = `id, code, description, is_active, discount_type, discount_value, max_discount,
start_date, end_date, usage_limit, usage_count, conditions`
	couponsSelect = `SELECT ` + couponColumns + ` FROM coupons WHERE restaurant_id = $1`
	couponQuery   = `SELECT ` + couponColumns + ` FROM coupons WHERE restaurant_id = $1 AND upper(code) = $2`

	onlyActive = ` AND is_active`
	byPriority = ` ORDER BY priority DESC, id`
	byCode     = ` ORDER BY code`

	restaurantExists = `SELECT EXISTS (SELECT 1 FROM restaurants WHERE id = $1)`
)

var familyTables = map[string]string{
	billing.FamilyPricing:  "pricing_rules",
	billing.FamilyTax:      "tax_rules",
	billing.FamilyDiscount: "discount_rules",
	billing.FamilyCoupon:   "coupons",
}

// PGStore reads rules from Postgres. Rows whose JSON columns do not decode
// are logged and left out of snapshots.
type PGStore struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

// Snapshot reads all four rule families inside one read-only repeatable-read
// transaction so the set never mixes two versions of the configuration.
func (s PGStore) Snapshot(ctx context.Context, restaurantID string) (billing.RuleSet, error) {
	return s.load(ctx, restaurantID, onlyActive)
}

// All reads every stored rule for the restaurant, inactive ones included.
func (s PGStore) All(ctx context.Context, restaurantID string) (billing.RuleSet, error) {
	return s.load(ctx, restaurantID, "")
}

func (s PGStore) load(ctx context.Context, restaurantID, filter string) (billing.RuleSet, error) {
	var rs billing.RuleSet
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return rs, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, restaurantExists, restaurantID).Scan(&exists); err != nil {
		return rs, fmt.Errorf("check restaurant: %w", err)
	}
	if !exists {
		return rs, ErrNotFound
	}

	query := func(sql string) (pgx.Rows, error) { return tx.Query(ctx, sql, restaurantID) }
	skip := s.skipper(restaurantID)

	if rs.Pricing, err = collect(query, pricingSelect+filter+byPriority, scanPricing, skip); err != nil {
		return rs, fmt.Errorf("load pricing rules: %w", err)
	}
	if rs.Tax, err = collect(query, taxSelect+filter+byPriority, scanTax, skip); err != nil {
		return rs, fmt.Errorf("load tax rules: %w", err)
	}
	if rs.Discounts, err = collect(query, discountSelect+filter+byPriority, scanDiscount, skip); err != nil {
		return rs, fmt.Errorf("load discount rules: %w", err)
	}
	if rs.Coupons, err = collect(query, couponsSelect+filter+byCode, scanCoupon, skip); err != nil {
		return rs, fmt.Errorf("load coupons: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return rs, fmt.Errorf("commit snapshot: %w", err)
	}
	return rs, nil
}

// Save validates and upserts rs in one transaction.
func (s PGStore) Save(ctx context.Context, restaurantID string, rs billing.RuleSet) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		return Import(ctx, tx, restaurantID, rs)
	})
}

// Deactivate switches a rule or coupon off. Rows are kept so placed orders
// still reference the rules they were priced with.
func (s PGStore) Deactivate(ctx context.Context, restaurantID, family, id string) error {
	table, ok := familyTables[family]
	if !ok {
		return ErrUnknownFamily
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE `+table+` SET is_active = FALSE WHERE id = $1 AND restaurant_id = $2`, id, restaurantID)
	if err != nil {
		return fmt.Errorf("deactivate %s rule %s: %w", family, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Coupon loads one coupon by normalized code, active or not.
func (s PGStore) Coupon(ctx context.Context, restaurantID, code string) (billing.Coupon, error) {
	row := s.Pool.QueryRow(ctx, couponQuery, restaurantID, billing.NormalizeCode(code))
	c, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (s PGStore) skipper(restaurantID string) func(error) {
	return func(err error) {
		s.Logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("skipping malformed stored rule")
		obs.ObserveSkippedRules(1)
	}
}

// collect scans every row of sql. Rows that fail with a *billing.ConfigError
// are handed to skip and dropped; any other error aborts the scan.
func collect[T any](query func(string) (pgx.Rows, error), sql string, scan func(pgx.Row) (T, error), skip func(error)) ([]T, error) {
	rows, err := query(sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			if skip != nil && billing.IsConfigError(err) {
				skip(err)
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanPricing(row pgx.Row) (billing.PricingRule, error) {
	var (
		r                  billing.PricingRule
		conditions, action []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Priority, &r.IsActive, &conditions, &action); err != nil {
		return r, err
	}
	if err := decodeJSON(conditions, &r.Condition); err != nil {
		return r, decodeError(billing.FamilyPricing, r.ID, "conditions", err)
	}
	if err := decodeJSON(action, &r.Action); err != nil {
		return r, decodeError(billing.FamilyPricing, r.ID, "action", err)
	}
	return r, nil
}

func scanTax(row pgx.Row) (billing.TaxRule, error) {
	var (
		r          billing.TaxRule
		conditions []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Priority, &r.IsActive, &r.Rate, &r.Application, &r.IsCompound, &conditions); err != nil {
		return r, err
	}
	if err := decodeJSON(conditions, &r.Condition); err != nil {
		return r, decodeError(billing.FamilyTax, r.ID, "conditions", err)
	}
	return r, nil
}

func scanDiscount(row pgx.Row) (billing.DiscountRule, error) {
	var (
		r          billing.DiscountRule
		maxDisc    decimal.NullDecimal
		conditions []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Priority, &r.IsActive, &r.Type, &r.Value, &maxDisc, &conditions); err != nil {
		return r, err
	}
	r.MaxDiscount = nullable(maxDisc)
	if err := decodeJSON(conditions, &r.Condition); err != nil {
		return r, decodeError(billing.FamilyDiscount, r.ID, "conditions", err)
	}
	return r, nil
}

func scanCoupon(row pgx.Row) (billing.Coupon, error) {
	var (
		c          billing.Coupon
		maxDisc    decimal.NullDecimal
		start, end *time.Time
		limit      *int32
		count      int32
		conditions []byte
	)
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.IsActive, &c.DiscountType, &c.DiscountValue,
		&maxDisc, &start, &end, &limit, &count, &conditions)
	if err != nil {
		return c, err
	}
	c.MaxDiscount = nullable(maxDisc)
	c.StartDate, c.EndDate = start, end
	if limit != nil {
		l := int(*limit)
		c.UsageLimit = &l
	}
	c.UsageCount = int(count)
	if err := decodeJSON(conditions, &c.Condition); err != nil {
		return c, decodeError(billing.FamilyCoupon, c.ID, "conditions", err)
	}
	return c, nil
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func decodeError(family, id, field string, err error) error {
	return &billing.ConfigError{Family: family, RuleID: id, Field: field, Err: fmt.Errorf("stored value does not decode: %w", err)}
}
