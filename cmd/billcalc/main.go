// Command billcalc prices a cart offline against a YAML rule pack.
//
//	billcalc -rules pack.yaml -cart cart.yaml [-at 2024-01-02T17:00:00Z] [-tz Europe/Rome]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/resto-billing/internal/billing"
	"github.com/noah-isme/resto-billing/internal/obs"
	"github.com/noah-isme/resto-billing/internal/rules"
)

type cartFile struct {
	RestaurantID  string             `json:"restaurantId"`
	CouponCode    string             `json:"couponCode"`
	CustomerEmail string             `json:"customerEmail"`
	IsFirstOrder  bool               `json:"isFirstOrder"`
	Timestamp     *time.Time         `json:"timestamp"`
	Items         []billing.CartItem `json:"items"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "billcalc:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("billcalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulesPath := fs.String("rules", "", "YAML rule pack")
	cartPath := fs.String("cart", "", "YAML cart")
	at := fs.String("at", "", "evaluation time (RFC 3339), overrides the cart timestamp")
	tz := fs.String("tz", "", "IANA zone used for time-of-day and day-of-week matching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesPath == "" || *cartPath == "" {
		return errors.New("-rules and -cart are required")
	}

	source, err := rules.LoadFile(*rulesPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(*cartPath)
	if err != nil {
		return fmt.Errorf("read cart: %w", err)
	}
	var cart cartFile
	if err := rules.DecodeYAML(raw, &cart); err != nil {
		return fmt.Errorf("decode cart: %w", err)
	}
	rs, err := source.Snapshot(context.Background(), cart.RestaurantID)
	if err != nil {
		return fmt.Errorf("restaurant %q: %w", cart.RestaurantID, err)
	}

	in := billing.Input{CustomerEmail: cart.CustomerEmail, IsFirstOrder: cart.IsFirstOrder}
	if cart.Timestamp != nil {
		in.Timestamp = *cart.Timestamp
	}
	if *at != "" {
		ts, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("-at: %w", err)
		}
		in.Timestamp = ts
	}
	opts := []billing.Option{billing.WithLogger(obs.NewLoggerTo(stderr, "console"))}
	if *tz != "" {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			return fmt.Errorf("-tz: %w", err)
		}
		opts = append(opts, billing.WithLocation(loc))
	}

	calc, err := billing.Calculate(cart.Items, rs, cart.CouponCode, in, opts...)
	if err != nil {
		return err
	}
	decimal.MarshalJSONWithoutQuotes = true
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(calc)
}
