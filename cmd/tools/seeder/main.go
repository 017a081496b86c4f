package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/db"
	"github.com/noah-isme/resto-billing/internal/menu"
	"github.com/noah-isme/resto-billing/internal/obs"
	"github.com/noah-isme/resto-billing/internal/rules"
)

type seedRestaurant struct {
	Name string      `json:"name"`
	Menu []menu.Item `json:"menu"`
	billing.RuleSet
}

type seedFile struct {
	Restaurants map[string]seedRestaurant `json:"restaurants"`
}

func main() {
	_ = godotenv.Load()
	logger := obs.NewLoggerTo(os.Stderr, "console")

	path := flag.String("file", "seed.yaml", "seed file with restaurants, menus and rules")
	migrate := flag.Bool("migrate", false, "apply migrations before seeding")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *path).Msg("read seed file")
	}
	seed, err := parseSeed(raw)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *path).Msg("parse seed file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := db.Migrate(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	for _, id := range restaurantIDs(seed) {
		r := seed.Restaurants[id]
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return seedOne(ctx, tx, id, r)
		})
		if err != nil {
			logger.Fatal().Err(err).Str("restaurant_id", id).Msg("seed restaurant")
		}
		logEvent(logger, id, r)
	}
	logger.Info().Int("restaurants", len(seed.Restaurants)).Msg("seeding completed")
}

func parseSeed(raw []byte) (seedFile, error) {
	var seed seedFile
	if err := rules.DecodeYAML(raw, &seed); err != nil {
		return seed, err
	}
	if len(seed.Restaurants) == 0 {
		return seed, errors.New("no restaurants in seed file")
	}
	for id, r := range seed.Restaurants {
		if r.Name == "" {
			return seed, fmt.Errorf("restaurant %s: name is required", id)
		}
		if err := billing.ValidateRuleSet(r.RuleSet); err != nil {
			return seed, fmt.Errorf("restaurant %s: %w", id, err)
		}
	}
	return seed, nil
}

func restaurantIDs(seed seedFile) []string {
	ids := make([]string, 0, len(seed.Restaurants))
	for id := range seed.Restaurants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func seedOne(ctx context.Context, tx pgx.Tx, id string, r seedRestaurant) error {
	if _, err := tx.Exec(ctx, `INSERT INTO restaurants (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, id, r.Name); err != nil {
		return fmt.Errorf("upsert restaurant: %w", err)
	}
	if err := menu.Import(ctx, tx, id, r.Menu); err != nil {
		return err
	}
	return rules.Import(ctx, tx, id, r.RuleSet)
}

func logEvent(logger zerolog.Logger, id string, r seedRestaurant) {
	logger.Info().
		Str("restaurant_id", id).
		Int("menu_items", len(r.Menu)).
		Int("pricing_rules", len(r.Pricing)).
		Int("tax_rules", len(r.Tax)).
		Int("discount_rules", len(r.Discounts)).
		Int("coupons", len(r.Coupons)).
		Msg("restaurant seeded")
}
