package promo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

var (
	// ErrNotFound is returned when the code does not match any known rule.
	ErrNotFound = errors.New("promo code not found")
	// ErrCodeRequired is returned for blank input.
	ErrCodeRequired = errors.New("promo code required")
)

// Rule maps a promo code to its discount.
type Rule struct {
	Code        string           `json:"code"`
	Discount    pricing.Discount `json:"discount"`
	Description string           `json:"description,omitempty"`
}

// Resolver validates a code and returns the matching rule. Implementations
// must return ErrNotFound for unknown codes.
type Resolver interface {
	Resolve(ctx context.Context, code string) (Rule, error)
}

// Normalize trims and upper-cases a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Table is a static rule table keyed by normalized code.
type Table struct {
	rules map[string]Rule
}

// NewTable builds a table from the provided rules. Later duplicates replace earlier ones.
func NewTable(rules ...Rule) *Table {
	t := &Table{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		code := Normalize(r.Code)
		if code == "" {
			continue
		}
		r.Code = code
		t.rules[code] = r
	}
	return t
}

// DefaultRules returns the storefront's built-in codes.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "SAVE10", Discount: pricing.Discount{Kind: pricing.DiscountPercentage, Value: pricing.MustParse("10")}, Description: "10% off your order"},
		{Code: "WELCOME15", Discount: pricing.Discount{Kind: pricing.DiscountPercentage, Value: pricing.MustParse("15")}, Description: "15% off for new customers"},
		{Code: "FREESHIP", Discount: pricing.Discount{Kind: pricing.DiscountFreeShipping}, Description: "Free standard shipping"},
		{Code: "FLAT20", Discount: pricing.Discount{Kind: pricing.DiscountFixed, Value: pricing.MustParse("20")}, Description: "20.00 off your order"},
	}
}

// Resolve implements Resolver. Matching is exact after normalization.
func (t *Table) Resolve(_ context.Context, code string) (Rule, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return Rule{}, ErrCodeRequired
	}
	if t == nil {
		return Rule{}, ErrNotFound
	}
	rule, ok := t.rules[normalized]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return rule, nil
}

// Codes lists the known codes in lexical order.
func (t *Table) Codes() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.rules))
	for code := range t.rules {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ParseRules decodes a CSV of CODE:kind:value entries, e.g.
// "SAVE10:percentage:10,FREESHIP:free_shipping:0,FLAT20:fixed:20".
func ParseRules(csv string) ([]Rule, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var rules []Rule
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("promo: malformed rule %q", entry)
		}
		code := Normalize(parts[0])
		if code == "" {
			return nil, fmt.Errorf("promo: empty code in %q", entry)
		}
		kind := pricing.DiscountKind(strings.ToLower(strings.TrimSpace(parts[1])))
		value := pricing.Zero
		if len(parts) == 3 {
			value = pricing.ParseAmount(parts[2])
		}
		switch kind {
		case pricing.DiscountPercentage:
			if !value.IsPositive() || value.GreaterThan(pricing.MustParse("100")) {
				return nil, fmt.Errorf("promo: percentage for %s must be within (0, 100]", code)
			}
		case pricing.DiscountFixed:
			if !value.IsPositive() {
				return nil, fmt.Errorf("promo: fixed amount for %s must be positive", code)
			}
		case pricing.DiscountFreeShipping:
			value = pricing.Zero
		default:
			return nil, fmt.Errorf("promo: unknown kind %q for %s", parts[1], code)
		}
		rules = append(rules, Rule{Code: code, Discount: pricing.Discount{Kind: kind, Value: value}})
	}
	return rules, nil
}
