// Package inventory keeps catalog products in line with the distributor:
// stock, spec attributes, rebates and retail price.
package inventory

import (
	"errors"
	"strings"

	"atd-sync/internal/model"
	"atd-sync/internal/pricing"
	"atd-sync/internal/reconcile"
	"atd-sync/internal/soap"
)

// Spec-list key prefixes, matched case-insensitively.
const (
	specMAP             = "MAP"
	specMileageWarranty = "MileageWarranty"
	specRunFlat         = "RunFlat"
	specSidewall        = "Sidewall"
)

// managedAttributes are reconciled from the spec list. pa_map is driven by
// pricing instead.
var managedAttributes = []string{model.AttrMileageWarranty, model.AttrSidewall, model.AttrRunFlat}

// rebateExcluded is the program code that never counts as a rebate.
const rebateExcluded = "total access"

// Reasons a price was left untouched.
const (
	SkipNoCost       = "cost attribute not found"
	SkipCostNotAbove = "cost is not above 0"
	SkipNoTable      = "pricing table not configured"
)

// Change describes what ApplyUpdate did to a product.
type Change struct {
	Absent     bool // no distributor record; product marked out of stock
	OutOfStock bool

	// Attributes is nil when the record had no spec list.
	Attributes *reconcile.AttributeDiff

	Quote     *pricing.Quote // set when the price was recomputed
	PriceSkip string         // why pricing did not run, if it did not
	PriceErr  error          // configuration problem for this product
}

// ApplyUpdate writes a distributor record onto p. A nil record means the
// distributor does not carry the SKU. Applying the same record twice
// leaves p unchanged the second time.
func ApplyUpdate(p *model.Product, rec *soap.ProductRecord, table *pricing.Table) Change {
	if rec == nil {
		p.MarkOutOfStock()
		p.NotPresentUpstream = true
		return Change{Absent: true, OutOfStock: true}
	}

	var c Change
	p.NotPresentUpstream = false
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}

	if rec.HasSpecs {
		desired := map[string]string{
			model.AttrMileageWarranty: spec(rec, specMileageWarranty),
			model.AttrSidewall:        spec(rec, specSidewall),
			model.AttrRunFlat:         spec(rec, specRunFlat),
		}
		c.Attributes = reconcile.DiffAttributes(p.Attributes, desired, managedAttributes)
		p.Attributes = c.Attributes.Apply(p.Attributes)
	}

	if rec.AvailableQty != nil {
		p.Stock = *rec.AvailableQty
		if p.Stock == 0 {
			p.StockStatus = model.StockOutOfStock
			p.HiddenOutOfStock = true
		} else {
			p.StockStatus = model.StockInStock
			p.HiddenOutOfStock = false
		}
	}
	c.OutOfStock = p.StockStatus == model.StockOutOfStock

	applyRebate(p, rec.Rebates)
	applyPrice(p, rec, table, &c)
	return c
}

func spec(rec *soap.ProductRecord, prefix string) string {
	v, _ := rec.Spec(prefix)
	return v
}

func applyRebate(p *model.Product, rebates []soap.Rebate) {
	p.RebateDescription, p.RebateURL = "", ""
	for _, r := range rebates {
		if strings.EqualFold(strings.TrimSpace(r.Code), rebateExcluded) {
			continue
		}
		p.RebateDescription = r.Description
		p.RebateURL = r.URL
		return
	}
}

func applyPrice(p *model.Product, rec *soap.ProductRecord, table *pricing.Table, c *Change) {
	if !rec.Cost.Valid {
		c.PriceSkip = SkipNoCost
		return
	}
	if table == nil {
		c.PriceSkip = SkipNoTable
		return
	}

	mapPrice, _ := model.ParseAmount(spec(rec, specMAP))
	q, err := table.Price(pricing.Input{
		Cost:   rec.Cost.Decimal,
		FET:    rec.FET,
		MAP:    mapPrice,
		Weight: p.Weight,
		Brand:  p.Brand,
	})
	switch {
	case errors.Is(err, pricing.ErrNonPositiveCost):
		c.PriceSkip = SkipCostNotAbove
		return
	case err != nil:
		c.PriceErr = err
		return
	}

	p.RegularPrice = q.Price
	p.Price = q.Price
	p.Cost = q.Cost
	if q.UsesMAP {
		p.Attributes[model.AttrMAP] = "yes"
	} else {
		delete(p.Attributes, model.AttrMAP)
	}
	c.Quote = &q
}
