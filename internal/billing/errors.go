package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrCouponInactive is returned when the coupon has been disabled.
	ErrCouponInactive = errors.New("coupon inactive")
	// ErrCouponNotStarted is returned before the coupon start date.
	ErrCouponNotStarted = errors.New("coupon not yet valid")
	// ErrCouponExpired is returned after the coupon end date.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached indicates the coupon has exhausted its usage quota.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCouponConditionsUnmet indicates the cart does not satisfy the coupon conditions.
	ErrCouponConditionsUnmet = errors.New("coupon conditions not met")
)

// ConfigError reports a malformed rule.
type ConfigError struct {
	Family string
	RuleID string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("billing: %s rule %q: invalid %s: %v", e.Family, e.RuleID, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InputError reports an invalid cart. It is raised before any resolver runs.
type InputError struct {
	MenuItemID string
	Reason     string
}

func (e *InputError) Error() string {
	if e == nil {
		return ""
	}
	if e.MenuItemID == "" {
		return "billing: invalid cart: " + e.Reason
	}
	return fmt.Sprintf("billing: invalid cart item %q: %s", e.MenuItemID, e.Reason)
}

// IsInputError reports whether err is or wraps an InputError.
func IsInputError(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// ConfigErrors flattens err, typically the result of ValidateRuleSet, into its
// individual ConfigErrors.
func ConfigErrors(err error) []*ConfigError {
	var out []*ConfigError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ce, ok := e.(*ConfigError); ok {
			out = append(out, ce)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
