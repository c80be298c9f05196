// Package pricing computes retail prices from distributor cost.
//
// The formula is fixed by the merchandising team:
//
//	cost'  = cost + fet                      (fet only when > 0)
//	tier   = first freight tier with weight <= end_weight, else the last tier
//	markup = brand markup for tier, from the MAP table when MAP > 0
//	price  = round(cost' / (1 - markup/100) + freight_fee, 2)
//	price  = max(price, MAP)                 (after rounding)
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveCost = errors.New("cost is not above 0")
	ErrMarkupTooHigh   = errors.New("markup must be below 100 percent")
	ErrNoTiers         = errors.New("at least one freight tier is required")
)

var hundred = decimal.NewFromInt(100)

// Tier is one freight breakpoint.
type Tier struct {
	MaxWeight decimal.Decimal `json:"end_weight"`
	Fee       decimal.Decimal `json:"freight_fee"`
}

// Markups holds one brand's markup percentages, indexed by tier.
type Markups struct {
	Regular []decimal.Decimal `json:"markup"`
	MAP     []decimal.Decimal `json:"map"`
}

// Table is the pricing configuration: freight tiers in ascending weight
// order and brand markups keyed by brand name.
type Table struct {
	Tiers  []Tier             `json:"freight_tiers"`
	Brands map[string]Markups `json:"brand_markups"`
}

// LoadFile reads a Table from a JSON file and validates it.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the tiers are present and strictly ascending, and that no
// markup or fee is negative. A markup of 100 or more is reported per product
// by Price, so one bad brand row does not block the whole catalog.
func (t *Table) Validate() error {
	if len(t.Tiers) == 0 {
		return ErrNoTiers
	}
	for i, tier := range t.Tiers {
		if tier.Fee.IsNegative() {
			return fmt.Errorf("freight tier %d: negative fee %s", i+1, tier.Fee)
		}
		if i > 0 && !tier.MaxWeight.GreaterThan(t.Tiers[i-1].MaxWeight) {
			return fmt.Errorf("freight tier %d: end_weight %s is not above tier %d (%s)",
				i+1, tier.MaxWeight, i, t.Tiers[i-1].MaxWeight)
		}
	}
	for brand, m := range t.Brands {
		for _, list := range [][]decimal.Decimal{m.Regular, m.MAP} {
			for i, pct := range list {
				if pct.IsNegative() {
					return fmt.Errorf("brand %q tier %d: negative markup %s", brand, i+1, pct)
				}
			}
		}
	}
	return nil
}

// TierFor returns the index of the first tier whose end weight is at least
// weight. Heavier items fall into the last tier.
func (t *Table) TierFor(weight decimal.Decimal) int {
	for i, tier := range t.Tiers {
		if weight.LessThanOrEqual(tier.MaxWeight) {
			return i
		}
	}
	return len(t.Tiers) - 1
}

// Markup returns the brand's markup for tier. found is false when the brand
// or the tier has no entry, in which case the markup is zero.
func (t *Table) Markup(brand string, tier int, useMAP bool) (pct decimal.Decimal, found bool) {
	m, ok := t.brand(brand)
	if !ok {
		return decimal.Zero, false
	}
	list := m.Regular
	if useMAP {
		list = m.MAP
	}
	if tier < 0 || tier >= len(list) {
		return decimal.Zero, false
	}
	return list[tier], true
}

func (t *Table) brand(name string) (Markups, bool) {
	name = strings.TrimSpace(name)
	if m, ok := t.Brands[name]; ok {
		return m, true
	}
	for k, m := range t.Brands {
		if strings.EqualFold(k, name) {
			return m, true
		}
	}
	return Markups{}, false
}

// Input is what Price needs from a product and its distributor record.
type Input struct {
	Cost   decimal.Decimal
	FET    decimal.Decimal
	MAP    decimal.Decimal // zero when the product has no MAP
	Weight decimal.Decimal
	Brand  string
}

// Quote is the outcome of a price computation.
type Quote struct {
	Price       decimal.Decimal
	Cost        decimal.Decimal // cost including FET; stored as cost of goods
	Tier        int             // zero-based
	Freight     decimal.Decimal
	Markup      decimal.Decimal
	MarkupFound bool
	UsesMAP     bool // MAP > 0, so the MAP markup table applied
	RaisedToMAP bool
}

// Price applies the pricing formula.
func (t *Table) Price(in Input) (Quote, error) {
	if !in.Cost.IsPositive() {
		return Quote{}, ErrNonPositiveCost
	}
	if len(t.Tiers) == 0 {
		return Quote{}, ErrNoTiers
	}

	q := Quote{Cost: in.Cost, UsesMAP: in.MAP.IsPositive()}
	if in.FET.IsPositive() {
		q.Cost = q.Cost.Add(in.FET)
	}

	q.Tier = t.TierFor(in.Weight)
	q.Freight = t.Tiers[q.Tier].Fee
	q.Markup, q.MarkupFound = t.Markup(in.Brand, q.Tier, q.UsesMAP)
	if q.Markup.GreaterThanOrEqual(hundred) {
		return Quote{}, fmt.Errorf("brand %q tier %d markup %s: %w", in.Brand, q.Tier+1, q.Markup, ErrMarkupTooHigh)
	}

	divisor := decimal.NewFromInt(1).Sub(q.Markup.Div(hundred))
	q.Price = q.Cost.Div(divisor).Add(q.Freight).Round(2)

	if q.UsesMAP && q.Price.LessThan(in.MAP) {
		q.Price = in.MAP
		q.RaisedToMAP = true
	}
	return q, nil
}
