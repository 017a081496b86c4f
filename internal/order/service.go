package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/lock"
	"github.com/noah-isme/resto-billing/internal/menu"
	"github.com/noah-isme/resto-billing/internal/obs"
	"github.com/noah-isme/resto-billing/internal/rules"
	"github.com/noah-isme/resto-billing/internal/tasks"
)

// Store persists orders.
type Store interface {
	HasPriorOrder(ctx context.Context, restaurantID, email string) (bool, error)
	Create(ctx context.Context, o Order, redeem *CouponRedemption) error
	GetByNumber(ctx context.Context, orderNumber string) (Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, orderNumber string, from, to Status) error
}

// Locker serialises work on a key across API instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Publisher announces committed orders.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, evt tasks.OrderPlaced) error
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Menu      menu.Repository
	Rules     rules.Source
	Coupons   rules.CouponFinder
	Store     Store
	Locker    Locker
	Publisher Publisher
	Location  *time.Location
	LockTTL   time.Duration
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Service orchestrates menu lookup, rule loading, billing and persistence.
type Service struct {
	menu      menu.Repository
	rules     rules.Source
	coupons   rules.CouponFinder
	store     Store
	locker    Locker
	publisher Publisher
	location  *time.Location
	lockTTL   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Service{
		menu:      cfg.Menu,
		rules:     cfg.Rules,
		coupons:   cfg.Coupons,
		store:     cfg.Store,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		location:  cfg.Location,
		lockTTL:   ttl,
		now:       now,
		logger:    cfg.Logger,
	}
}

// Preview prices a cart without writing anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*billing.BillingCalculation, error) {
	firstOrder := false
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		prior, err := s.store.HasPriorOrder(ctx, req.RestaurantID, email)
		if err != nil {
			return nil, fmt.Errorf("check order history: %w", err)
		}
		firstOrder = !prior
	}
	calc, _, err := s.price(ctx, req.RestaurantID, req.Items, req.CouponCode, billing.Input{
		Timestamp:     s.now(),
		CustomerEmail: req.CustomerEmail,
		IsFirstOrder:  firstOrder,
	})
	return calc, err
}

// Place prices the cart and persists the order. When a coupon with a usage
// limit applies, the redemption runs under a lock on (restaurant, code) and the
// usage increment commits atomically with the order.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (Order, error) {
	prior, err := s.store.HasPriorOrder(ctx, req.RestaurantID, req.CustomerEmail)
	if err != nil {
		return Order{}, fmt.Errorf("check order history: %w", err)
	}
	now := s.now()
	calc, rs, err := s.price(ctx, req.RestaurantID, req.Items, req.CouponCode, billing.Input{
		Timestamp:     now,
		CustomerEmail: req.CustomerEmail,
		IsFirstOrder:  !prior,
	})
	if err != nil {
		return Order{}, err
	}

	o := newOrder(uuid.New(), newOrderNumber(now), req, calc, now)
	var redeem *CouponRedemption
	var limited bool
	if calc.CouponCode != nil {
		redeem = &CouponRedemption{RestaurantID: req.RestaurantID, Code: *calc.CouponCode}
		if c, ok := billing.FindCoupon(rs.Coupons, *calc.CouponCode); ok && c.UsageLimit != nil {
			limited = true
		}
	}

	persist := func(ctx context.Context) error { return s.store.Create(ctx, o, redeem) }
	if limited && s.locker != nil {
		key := lock.Key("coupon", req.RestaurantID, billing.NormalizeCode(redeem.Code))
		err = s.locker.WithLock(ctx, key, s.lockTTL, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrCouponUnavailable) {
			obs.ObserveCoupon("exhausted")
		}
		return Order{}, err
	}

	s.publish(ctx, o)
	return o, nil
}

// Get loads an order by its public number.
func (s *Service) Get(ctx context.Context, orderNumber string) (Order, error) {
	return s.store.GetByNumber(ctx, strings.TrimSpace(orderNumber))
}

// List returns a page of a restaurant's orders, newest first, and the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.store.List(ctx, f)
}

// UpdateStatus moves an order along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, orderNumber string, next Status) (Order, error) {
	o, err := s.store.GetByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, err
	}
	if !o.Status.CanTransition(next) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, next)
	}
	if err := s.store.UpdateStatus(ctx, orderNumber, o.Status, next); err != nil {
		return Order{}, err
	}
	o.Status = next
	return o, nil
}

// liveCoupon replaces the snapshot's copy of the requested coupon with the
// stored row. Cached snapshots carry usage counts from when they were built.
func (s *Service) liveCoupon(ctx context.Context, restaurantID, code string, rs billing.RuleSet) (billing.RuleSet, error) {
	want := billing.NormalizeCode(code)
	if s.coupons == nil || want == "" {
		return rs, nil
	}
	live, err := s.coupons.Coupon(ctx, restaurantID, want)
	found := err == nil
	switch {
	case err == nil, errors.Is(err, rules.ErrNotFound):
	case billing.IsConfigError(err):
		s.logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("skipping malformed stored coupon")
	default:
		return rs, fmt.Errorf("load coupon: %w", err)
	}
	coupons := make([]billing.Coupon, 0, len(rs.Coupons)+1)
	for _, c := range rs.Coupons {
		if billing.NormalizeCode(c.Code) != want {
			coupons = append(coupons, c)
		}
	}
	if found {
		coupons = append(coupons, live)
	}
	rs.Coupons = coupons
	return rs, nil
}

func (s *Service) price(ctx context.Context, restaurantID string, lines []menu.Line, couponCode string, in billing.Input) (*billing.BillingCalculation, billing.RuleSet, error) {
	items, err := s.menu.FindAvailable(ctx, restaurantID, menu.IDs(lines))
	if err != nil {
		return nil, billing.RuleSet{}, fmt.Errorf("load menu: %w", err)
	}
	cart, err := menu.BuildCart(lines, items)
	if err != nil {
		obs.ObserveCalculation("invalid_input", 0, 0)
		return nil, billing.RuleSet{}, err
	}
	rs, err := s.rules.Snapshot(ctx, restaurantID)
	if err != nil {
		return nil, billing.RuleSet{}, fmt.Errorf("load rules: %w", err)
	}
	if rs, err = s.liveCoupon(ctx, restaurantID, couponCode, rs); err != nil {
		return nil, billing.RuleSet{}, err
	}

	_, span := otel.Tracer("billing").Start(ctx, "billing.calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.Int("cart.lines", len(cart)),
	)

	start := time.Now()
	engine := billing.NewEngine(rs,
		billing.WithClock(s.now),
		billing.WithLocation(s.location),
		billing.WithLogger(s.logger.With().Str("restaurant_id", restaurantID).Logger()),
	)
	calc, err := engine.Calculate(cart, couponCode, in)
	skipped := len(engine.Skipped())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result := "error"
		if billing.IsInputError(err) {
			result = "invalid_input"
		}
		obs.ObserveCalculation(result, time.Since(start), skipped)
		return nil, rs, err
	}
	obs.ObserveCalculation("ok", time.Since(start), skipped)
	span.SetAttributes(attribute.String("billing.grand_total", calc.GrandTotal.String()))

	if strings.TrimSpace(couponCode) != "" {
		if calc.CouponCode != nil {
			obs.ObserveCoupon("applied")
		} else {
			obs.ObserveCoupon("rejected")
		}
	}
	return calc, rs, nil
}

func (s *Service) publish(ctx context.Context, o Order) {
	if s.publisher == nil {
		return
	}
	evt := tasks.OrderPlaced{
		OrderNumber:  o.OrderNumber,
		RestaurantID: o.RestaurantID,
		GrandTotal:   o.TotalAmount,
		PlacedAt:     o.CreatedAt,
	}
	if o.CouponCode != nil {
		evt.CouponCode = *o.CouponCode
	}
	if err := s.publisher.PublishOrderPlaced(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("order_number", o.OrderNumber).Msg("publish order placed")
	}
}

func newOrderNumber(now time.Time) string {
	return "ORD-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
