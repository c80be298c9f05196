package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductKind selects which distributor catalog a product belongs to.
type ProductKind string

const (
	KindWheel ProductKind = "wheel"
	KindTire  ProductKind = "tire"
)

// Product tags that mark catalog items sourced from the distributor.
const (
	TagWheel = "atdw"
	TagTire  = "atdt"
)

// BlockingTags mark wheel/tire products. An unshipped line for one of these
// keeps its order open during the completion sweep.
var BlockingTags = []string{"custom-wheels", "tires", TagTire, TagWheel}

// ParseKind validates a product type parameter. Empty defaults to wheel.
func ParseKind(s string) (ProductKind, error) {
	switch ProductKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindWheel:
		return KindWheel, nil
	case KindTire:
		return KindTire, nil
	default:
		return "", NewInvalidTypeError(s)
	}
}

// Tag returns the product tag for the kind.
func (k ProductKind) Tag() string {
	if k == KindTire {
		return TagTire
	}
	return TagWheel
}

// StockStatus mirrors the store's stock status values.
type StockStatus string

const (
	StockInStock    StockStatus = "instock"
	StockOutOfStock StockStatus = "outofstock"
)

// Attribute keys written by the sync.
const (
	AttrMileageWarranty = "pa_mileage-warranty"
	AttrSidewall        = "pa_sidewall-type"
	AttrRunFlat         = "pa_runflat"
	AttrMAP             = "pa_map"
)

// Product is a catalog item as the sync sees it. Only the fields the
// distributor drives are modeled; everything else stays in the host store.
type Product struct {
	ID     int64           `json:"id"`
	SKU    string          `json:"sku"`
	Brand  string          `json:"brand"`
	Weight decimal.Decimal `json:"weight"`
	Tags   []string        `json:"tags"`

	Stock              int         `json:"stock"`
	StockStatus        StockStatus `json:"stock_status"`
	HiddenOutOfStock   bool        `json:"hidden_out_of_stock"` // visibility marker
	NotPresentUpstream bool        `json:"not_present_upstream"`
	LocalStock         int         `json:"local_stock"`

	RegularPrice decimal.Decimal `json:"regular_price"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`

	Attributes        map[string]string `json:"attributes"`
	RebateDescription string            `json:"rebate_description,omitempty"`
	RebateURL         string            `json:"rebate_url,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasAnyTag reports whether the product carries one of tags.
func (p *Product) HasAnyTag(tags ...string) bool {
	for _, have := range p.Tags {
		for _, want := range tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// MarkOutOfStock zeroes stock and hides the product from the storefront.
func (p *Product) MarkOutOfStock() {
	p.Stock = 0
	p.StockStatus = StockOutOfStock
	p.HiddenOutOfStock = true
}
