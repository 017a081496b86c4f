package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/resto-billing/internal/billing"
)

// FileSource serves rule sets decoded from a YAML rule pack:
//
//	restaurants:
//	  r1:
//	    pricing: [...]
//	    tax: [...]
//	    discount: [...]
//	    coupons: [...]
type FileSource struct {
	sets map[string]billing.RuleSet
}

type rulePack struct {
	Restaurants map[string]billing.RuleSet `json:"restaurants"`
}

// LoadFile reads and validates a YAML rule pack from path.
func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes a rule pack. Every rule set must pass billing.ValidateRuleSet.
func ParseYAML(raw []byte) (*FileSource, error) {
	var pack rulePack
	if err := DecodeYAML(raw, &pack); err != nil {
		return nil, fmt.Errorf("decode rule pack: %w", err)
	}
	for id, rs := range pack.Restaurants {
		if err := billing.ValidateRuleSet(rs); err != nil {
			return nil, fmt.Errorf("restaurant %s: %w", id, err)
		}
	}
	if pack.Restaurants == nil {
		pack.Restaurants = map[string]billing.RuleSet{}
	}
	return &FileSource{sets: pack.Restaurants}, nil
}

// DecodeYAML decodes YAML into dst through its JSON tags, so YAML documents
// share field names with the API payloads.
func DecodeYAML(raw []byte, dst any) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Snapshot implements Source.
func (f *FileSource) Snapshot(_ context.Context, restaurantID string) (billing.RuleSet, error) {
	rs, ok := f.sets[restaurantID]
	if !ok {
		return billing.RuleSet{}, ErrNotFound
	}
	return rs, nil
}

// Coupon implements CouponFinder.
func (f *FileSource) Coupon(_ context.Context, restaurantID, code string) (billing.Coupon, error) {
	rs, ok := f.sets[restaurantID]
	if !ok {
		return billing.Coupon{}, ErrNotFound
	}
	c, ok := billing.FindCoupon(rs.Coupons, code)
	if !ok {
		return billing.Coupon{}, ErrNotFound
	}
	return c, nil
}
