package soap

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"atd-sync/internal/model"
)

// === Typed records ===

// SpecEntry is one key/value pair from a product spec list.
type SpecEntry struct {
	Key   string
	Value string
}

// Rebate is a manufacturer rebate attached to a product.
type Rebate struct {
	Code        string
	Description string
	URL         string
}

// ProductRecord is the distributor's view of one SKU.
type ProductRecord struct {
	SKU string

	// HasSpecs is true when the response carried a productSpec element,
	// even an empty one. Attributes are only reconciled in that case.
	HasSpecs bool
	Specs    []SpecEntry

	AvailableQty *int // nil when availability was not reported
	Rebates      []Rebate

	Cost decimal.NullDecimal // invalid when price/cost was absent
	FET  decimal.Decimal
}

// Spec returns the value of the last entry whose key starts with prefix,
// case-insensitively. Later entries override earlier ones.
func (r *ProductRecord) Spec(prefix string) (string, bool) {
	for i := len(r.Specs) - 1; i >= 0; i-- {
		e := r.Specs[i]
		if len(e.Key) >= len(prefix) && strings.EqualFold(e.Key[:len(prefix)], prefix) {
			return e.Value, true
		}
	}
	return "", false
}

// InventoryRecord is per-location availability for a SKU.
type InventoryRecord struct {
	SKU      string
	Local    int
	HasLocal bool
}

// Fulfillment is the shipping leg reported for an order line.
type Fulfillment struct {
	TrackingNumber string
	TrackingURL    string
	ShipMethod     string
}

// OrderDetail is the order-status view of a confirmation number.
type OrderDetail struct {
	ConfirmationNumber string
	Fulfillment        *Fulfillment // nil when nothing has shipped
}

// PlaceOrderResult carries the distributor's order number.
type PlaceOrderResult struct {
	OrderNumber string
}

// === Wire format ===

// prefixPattern matches the prefix of an element name in a start or end tag.
// Text, attributes and declarations are left alone.
var prefixPattern = regexp.MustCompile(`<(/?)[A-Za-z_][\w.\-]*:`)

// stripPrefixes removes element-name prefixes so every response decodes the
// same way whatever prefixes the endpoint version binds (SOAP-ENV, ns2, pc...).
func stripPrefixes(body []byte) []byte {
	return prefixPattern.ReplaceAll(body, []byte("<$1"))
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault       *faultXML             `xml:"Fault"`
		Product     *productResponseXML   `xml:"getProductByCriteriaResponse"`
		Inventory   *inventoryResponseXML `xml:"getInventoryByLocationResponse"`
		OrderDetail *orderDetailRespXML   `xml:"getOrderDetailResponse"`
		PlaceOrder  *placeOrderRespXML    `xml:"placeOrderResponse"`
	} `xml:"Body"`
}

type faultXML struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *faultXML) message() string {
	if s := strings.TrimSpace(f.String); s != "" {
		return s
	}
	if c := strings.TrimSpace(f.Code); c != "" {
		return c
	}
	return "SOAP fault"
}

type entryXML struct {
	Key   string `xml:"key"`
	Value string `xml:"value"`
}

type productXML struct {
	ATDProductNumber string  `xml:"ATDProductNumber"`
	AvailableQty     *string `xml:"availableQty"`
	Price            *struct {
		Cost *string `xml:"cost"`
		FET  string  `xml:"fet"`
	} `xml:"price"`
	ProductSpec *struct {
		Entries []entryXML `xml:"entry"`
	} `xml:"productSpec"`
	Rebates []struct {
		Code        string `xml:"code"`
		Description string `xml:"description"`
		URL         string `xml:"url"`
	} `xml:"rebates>rebate"`
}

type productResponseXML struct {
	Products []productXML `xml:"products>product"`
}

type inventoryResponseXML struct {
	Inventory []struct {
		ATDProductNumber string  `xml:"ATDProductNumber"`
		Local            *string `xml:"local"`
	} `xml:"products>inventory"`
}

type fulfillmentXML struct {
	TrackingNumber string `xml:"trackingNumber"`
	TrackingURL    string `xml:"trackingUrl"`
	ShipMethod     string `xml:"shipMethod"`
}

type orderDetailRespXML struct {
	Lines []struct {
		Fulfillments []fulfillmentXML `xml:"fulfillments>fulfillment"`
	} `xml:"orderDetail>orderLines>orderLine"`
}

type placeOrderRespXML struct {
	OrderNumber *string `xml:"order>orderNumber"`
}

func decodeEnvelope(body []byte) (*envelope, error) {
	var env envelope
	dec := xml.NewDecoder(bytes.NewReader(stripPrefixes(body)))
	dec.Strict = true
	if err := dec.Decode(&env); err != nil {
		return nil, model.NewXMLParseError(err)
	}
	return &env, nil
}

// === Conversions ===

func (e *envelope) productRecord(sku string) (*ProductRecord, error) {
	resp := e.Body.Product
	if resp == nil {
		return nil, model.NewInvalidResponseError("Missing getProductByCriteriaResponse in API response")
	}

	want := strings.TrimSpace(sku)
	for _, p := range resp.Products {
		if strings.TrimSpace(p.ATDProductNumber) != want {
			continue
		}
		return p.record(), nil
	}
	return nil, nil
}

func (p *productXML) record() *ProductRecord {
	rec := &ProductRecord{SKU: strings.TrimSpace(p.ATDProductNumber)}

	if p.ProductSpec != nil {
		rec.HasSpecs = true
		for _, e := range p.ProductSpec.Entries {
			rec.Specs = append(rec.Specs, SpecEntry{
				Key:   strings.TrimSpace(e.Key),
				Value: strings.TrimSpace(e.Value),
			})
		}
	}

	if p.AvailableQty != nil {
		qty := parseQuantity(*p.AvailableQty)
		rec.AvailableQty = &qty
	}

	for _, r := range p.Rebates {
		rec.Rebates = append(rec.Rebates, Rebate{
			Code:        strings.TrimSpace(r.Code),
			Description: strings.TrimSpace(r.Description),
			URL:         strings.TrimSpace(r.URL),
		})
	}

	if p.Price != nil && p.Price.Cost != nil {
		rec.Cost = decimal.NullDecimal{Decimal: model.AmountOrZero(*p.Price.Cost), Valid: true}
		rec.FET = model.AmountOrZero(p.Price.FET)
	}
	return rec
}

func (e *envelope) inventoryRecords() ([]InventoryRecord, error) {
	resp := e.Body.Inventory
	if resp == nil {
		return nil, model.NewInvalidResponseError("Missing getInventoryByLocationResponse in API response")
	}

	records := make([]InventoryRecord, 0, len(resp.Inventory))
	for _, inv := range resp.Inventory {
		rec := InventoryRecord{SKU: strings.TrimSpace(inv.ATDProductNumber)}
		if inv.Local != nil {
			rec.Local = parseQuantity(*inv.Local)
			rec.HasLocal = true
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *envelope) orderDetail(confirmation string) (*OrderDetail, error) {
	resp := e.Body.OrderDetail
	if resp == nil {
		return nil, model.NewInvalidResponseError("Missing getOrderDetailResponse in API response")
	}

	detail := &OrderDetail{ConfirmationNumber: confirmation}
	if len(resp.Lines) > 0 && len(resp.Lines[0].Fulfillments) > 0 {
		f := resp.Lines[0].Fulfillments[0]
		detail.Fulfillment = &Fulfillment{
			TrackingNumber: strings.TrimSpace(f.TrackingNumber),
			TrackingURL:    strings.TrimSpace(f.TrackingURL),
			ShipMethod:     strings.TrimSpace(f.ShipMethod),
		}
	}
	return detail, nil
}

func (e *envelope) placeOrderResult() (*PlaceOrderResult, error) {
	resp := e.Body.PlaceOrder
	if resp == nil || resp.OrderNumber == nil || strings.TrimSpace(*resp.OrderNumber) == "" {
		return nil, model.NewInvalidResponseError("Missing order number in API response")
	}
	return &PlaceOrderResult{OrderNumber: strings.TrimSpace(*resp.OrderNumber)}, nil
}

// parseQuantity reads an integer quantity. Decimal strings are truncated;
// anything unparsable counts as zero.
func parseQuantity(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if d, ok := model.ParseAmount(s); ok {
		return int(d.IntPart())
	}
	return 0
}
