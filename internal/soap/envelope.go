package soap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"atd-sync/internal/model"
)

// PlaceOrderRequest is the order snapshot sent with placeOrder.
type PlaceOrderRequest struct {
	OrderNumber string        // customer PO number
	Shipping    model.Address // ship-to; also the token claims
	Phone       string        // digits only
	Email       string
	SKU         string
	Quantity    int
}

// Fixed order options.
const (
	deliveryInstructions = "**MUST SHIP SIGNATURE REQUIRED**"
	shippingMethod       = "CHEAPEST_FREIGHT"
	signatureRequired    = "DirectSignature"
	countryUS            = "US"
)

type security struct {
	ClientID       string
	Username       string
	Password       string
	AuthToken      string // placeOrder only
	LocationNumber string
}

type productData struct {
	security
	SKU string
}

type inventoryData struct {
	security
	Location   string
	PostalCode string
	SKU        string
}

type orderDetailData struct {
	security
	Confirmation string
}

type placeOrderData struct {
	security
	PlaceOrderRequest
}

func (d placeOrderData) DeliveryInstructions() string { return deliveryInstructions }
func (d placeOrderData) ShippingMethod() string       { return shippingMethod }
func (d placeOrderData) SignatureRequired() string    { return signatureRequired }
func (d placeOrderData) Country() string              { return countryUS }

func (c *Client) security(token string) security {
	return security{
		ClientID:       c.clientID,
		Username:       c.creds.Username,
		Password:       c.creds.Password,
		AuthToken:      token,
		LocationNumber: c.location,
	}
}

func (c *Client) render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := envelopes.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, model.NewInternalError(fmt.Errorf("rendering %s envelope: %w", name, err))
	}
	return buf.Bytes(), nil
}

// escape makes any interpolated value safe as element text or attribute value.
func escape(v any) string {
	var sb strings.Builder
	xml.EscapeText(&sb, []byte(fmt.Sprint(v)))
	return sb.String()
}

var envelopes = template.Must(template.New("soap").Funcs(template.FuncMap{"x": escape}).Parse(envelopeTemplates))

const envelopeTemplates = `
{{- define "security" -}}
<soapenv:Header>
<wsse:Security soapenv:mustUnderstand="1" xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
<wsse:UsernameToken atd:clientId="{{x .ClientID}}"{{if .AuthToken}} atd:authToken="Bearer {{x .AuthToken}}"{{end}} xmlns:atd="http://api.atdconnect.com/atd">
<wsse:Username>{{x .Username}}</wsse:Username>
<wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText">{{x .Password}}</wsse:Password>
</wsse:UsernameToken>
</wsse:Security>
</soapenv:Header>
{{- end -}}

{{- define "product" -}}
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:prod="http://sth.atdconnect.com/atd/1_1/productShipToHome" xmlns:com="http://sth.atdconnect.com/atd/1_1/commonShipToHome" xmlns:prod1="http://sth.atdconnect.com/atd/1_1/productShipToHomeCommon">
{{template "security" .}}
<soapenv:Body>
<prod:getProductByCriteriaRequest>
<prod:locationNumber>{{x .LocationNumber}}</prod:locationNumber>
<prod:criteria>
<com:entry>
<com:key>atdproductnumber</com:key>
<com:value>{{x .SKU}}</com:value>
</com:entry>
</prod:criteria>
<prod:options>
<prod1:price>
<com:cost>1</com:cost>
<com:retail>1</com:retail>
<com:specialDiscount>1</com:specialDiscount>
<com:fet>1</com:fet>
</prod1:price>
<prod1:images>
<prod1:thumbnail>1</prod1:thumbnail>
<prod1:small>1</prod1:small>
<prod1:large>1</prod1:large>
</prod1:images>
<prod1:productSpec></prod1:productSpec>
<prod1:includeAvailability>1</prod1:includeAvailability>
<prod1:includeRebates>1</prod1:includeRebates>
<prod1:includeMarketingPrograms>0</prod1:includeMarketingPrograms>
</prod:options>
</prod:getProductByCriteriaRequest>
</soapenv:Body>
</soapenv:Envelope>
{{- end -}}

{{- define "inventory" -}}
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:inv="http://sth.atdconnect.com/atd/1_1/inventoryShipToHome" xmlns:com="http://sth.atdconnect.com/atd/1_1/commonShipToHome">
{{template "security" .}}
<soapenv:Body>
<inv:getInventoryByLocationRequest>
<inv:locationNumber>{{x .Location}}</inv:locationNumber>
<inv:postalCode>{{x .PostalCode}}</inv:postalCode>
<inv:criteria>
<com:entry>
<com:key>ATDProductNumber</com:key>
<com:value>{{x .SKU}}</com:value>
</com:entry>
</inv:criteria>
</inv:getInventoryByLocationRequest>
</soapenv:Body>
</soapenv:Envelope>
{{- end -}}

{{- define "orderDetail" -}}
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ord="http://api.atdconnect.com/atd/3_4/orderStatus">
{{template "security" .}}
<soapenv:Body>
<ord:getOrderDetailRequest>
<ord:locationNumber>{{x .LocationNumber}}</ord:locationNumber>
<ord:confirmationNumber>{{x .Confirmation}}</ord:confirmationNumber>
</ord:getOrderDetailRequest>
</soapenv:Body>
</soapenv:Envelope>
{{- end -}}

{{- define "placeOrder" -}}
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ord="http://sth.atdconnect.com/atd/1_1/orderShipToHome" xmlns:com="http://sth.atdconnect.com/atd/1_1/commonShipToHome">
{{template "security" .}}
<soapenv:Body>
<ord:placeOrderRequest>
<ord:locationNumber>{{x .LocationNumber}}</ord:locationNumber>
<ord:order>
<ord:customerPONumber>{{x .OrderNumber}}</ord:customerPONumber>
<ord:consumerData>
<ord:name>{{x .Shipping.FullName}}</ord:name>
<ord:phoneNumber>{{x .Phone}}</ord:phoneNumber>
<ord:emailAddress>{{x .Email}}</ord:emailAddress>
<ord:address>
<com:address1>{{x .Shipping.Street}}</com:address1>
<com:city>{{x .Shipping.City}}</com:city>
<com:state>{{x .Shipping.State}}</com:state>
<com:postalCode>{{x .Shipping.Postcode}}</com:postalCode>
<com:country>{{.Country}}</com:country>
</ord:address>
<ord:deliveryInstructions>{{.DeliveryInstructions}}</ord:deliveryInstructions>
</ord:consumerData>
<ord:shippingMethod>{{.ShippingMethod}}</ord:shippingMethod>
<ord:signatureRequired>{{.SignatureRequired}}</ord:signatureRequired>
<ord:lineItems>
<ord:lineItem>
<ord:cartLineNumber>001</ord:cartLineNumber>
<ord:ATDProductNumber>{{x .SKU}}</ord:ATDProductNumber>
<ord:quantity>{{.Quantity}}</ord:quantity>
</ord:lineItem>
</ord:lineItems>
</ord:order>
</ord:placeOrderRequest>
</soapenv:Body>
</soapenv:Envelope>
{{- end -}}
`
