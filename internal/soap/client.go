// Package soap is the client for the distributor's SOAP web services.
//
// Each operation renders a fixed envelope, POSTs it, strips element prefixes
// from the response and decodes it into a typed record. Failures come back
// as *model.APIError with one of the upstream codes (curl_error, http_error,
// xml_parse_error, soap_fault, invalid_response, not_configured). The client
// never retries; callers decide whether a failure aborts their batch.
package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"atd-sync/internal/model"
	"atd-sync/internal/transport"
)

// Default endpoints and identifiers.
const (
	DefaultProductsURL    = "https://sth.atdconnect.com/ws/1_1/products.wsdl"
	DefaultOrderStatusURL = "https://ws.atdconnect.com/ws/3_4/orderStatus.wsdl"
	DefaultPlaceOrderURL  = "https://sth.atdconnect.com/ws/1_1/orderShipToHome.wsdl"

	DefaultClientID       = "IAPDI_ASAP"
	DefaultLocationNumber = "1320769"
)

// Operation names, used for logging and metrics labels.
const (
	OpGetProduct     = "getProductByCriteria"
	OpGetInventory   = "getInventoryByLocation"
	OpGetOrderDetail = "getOrderDetail"
	OpPlaceOrder     = "placeOrder"
)

const userAgent = "atd-sync/1.0"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// Credentials are the three secrets the distributor issues.
type Credentials struct {
	Username string
	Password string
	APIKey   string // HMAC key for the place-order token
}

// Observer receives one callback per SOAP call.
type Observer interface {
	ObserveCall(operation, outcome string, elapsed time.Duration)
}

// Config is everything the client needs, supplied at construction.
type Config struct {
	Credentials

	ClientID       string // default IAPDI_ASAP
	LocationNumber string // default 1320769

	ProductsURL    string
	OrderStatusURL string
	PlaceOrderURL  string

	// HTTPClient overrides the default client (30s timeout, standard transport).
	HTTPClient *http.Client

	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64

	Observer Observer
	Logger   *slog.Logger
}

// Client talks to the distributor. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	clientID   string
	location   string

	productsURL    string
	orderStatusURL string
	placeOrderURL  string

	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger
}

// New validates the endpoint configuration and returns a client. Missing
// credentials are not an error here: every operation reports not_configured
// instead, so the service can start and explain what is missing.
func New(cfg Config) (*Client, error) {
	c := &Client{
		httpClient:     cfg.HTTPClient,
		creds:          cfg.Credentials,
		clientID:       withDefault(cfg.ClientID, DefaultClientID),
		location:       withDefault(cfg.LocationNumber, DefaultLocationNumber),
		productsURL:    withDefault(cfg.ProductsURL, DefaultProductsURL),
		orderStatusURL: withDefault(cfg.OrderStatusURL, DefaultOrderStatusURL),
		placeOrderURL:  withDefault(cfg.PlaceOrderURL, DefaultPlaceOrderURL),
		observer:       cfg.Observer,
		logger:         cfg.Logger,
	}

	if err := checkEndpoints(c.productsURL, c.orderStatusURL, c.placeOrderURL); err != nil {
		return nil, err
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.NewStandardTransport(30 * time.Second),
		}
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Configured reports whether all three credentials are present.
func (c *Client) Configured() bool {
	return len(c.MissingConfig()) == 0
}

// MissingConfig names the absent credentials, in a fixed order.
func (c *Client) MissingConfig() []string {
	var missing []string
	if c.creds.Username == "" {
		missing = append(missing, "ATD_USERNAME")
	}
	if c.creds.Password == "" {
		missing = append(missing, "ATD_PASSWORD")
	}
	if c.creds.APIKey == "" {
		missing = append(missing, "ATD_API_KEY")
	}
	return missing
}

// LocationNumber is the ship-to-home location used for lookups and orders.
func (c *Client) LocationNumber() string {
	return c.location
}

func (c *Client) requireConfigured() error {
	if missing := c.MissingConfig(); len(missing) > 0 {
		return model.NewNotConfiguredError(missing)
	}
	return nil
}

// GetProductBySKU looks up one product. Returns (nil, nil) when the
// distributor has no product with exactly this SKU.
func (c *Client) GetProductBySKU(ctx context.Context, sku string) (*ProductRecord, error) {
	if err := c.requireConfigured(); err != nil {
		return nil, err
	}

	body, err := c.render("product", productData{security: c.security(""), SKU: sku})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, OpGetProduct, c.productsURL, body)
	if err != nil {
		return nil, err
	}
	return env.productRecord(sku)
}

// GetInventoryByLocation returns per-location stock for sku near zip.
func (c *Client) GetInventoryByLocation(ctx context.Context, location, zip, sku string) ([]InventoryRecord, error) {
	if err := c.requireConfigured(); err != nil {
		return nil, err
	}

	body, err := c.render("inventory", inventoryData{security: c.security(""), Location: location, PostalCode: zip, SKU: sku})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, OpGetInventory, c.productsURL, body)
	if err != nil {
		return nil, err
	}
	return env.inventoryRecords()
}

// GetOrderDetail fetches fulfillment status for a confirmation number.
// OrderDetail.Fulfillment is nil until the distributor has shipped.
func (c *Client) GetOrderDetail(ctx context.Context, confirmation string) (*OrderDetail, error) {
	if err := c.requireConfigured(); err != nil {
		return nil, err
	}

	body, err := c.render("orderDetail", orderDetailData{security: c.security(""), Confirmation: confirmation})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, OpGetOrderDetail, c.orderStatusURL, body)
	if err != nil {
		return nil, err
	}
	return env.orderDetail(confirmation)
}

// PlaceOrder submits a drop-ship order with a signed bearer token.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := c.requireConfigured(); err != nil {
		return nil, err
	}

	token, err := SignToken(ClaimsFor(c.location, req.Shipping), c.creds.APIKey)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("signing order token: %w", err))
	}

	body, err := c.render("placeOrder", placeOrderData{security: c.security(token), PlaceOrderRequest: req})
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, OpPlaceOrder, c.placeOrderURL, body)
	if err != nil {
		return nil, err
	}
	return env.placeOrderResult()
}

// call performs one POST and decodes the envelope. SOAP faults are returned
// as errors for every operation.
func (c *Client) call(ctx context.Context, op, url string, body []byte) (env *envelope, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = model.Code(err)
		}
		if c.observer != nil {
			c.observer.ObserveCall(op, outcome, time.Since(start))
		}
		c.logger.DebugContext(ctx, "soap call",
			"operation", op,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, model.NewTransportError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("SOAPAction", `""`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, model.NewTransportError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, respBody)
	}

	env, err = decodeEnvelope(respBody)
	if err != nil {
		return nil, err
	}
	if env.Body.Fault != nil {
		return nil, model.NewSOAPFaultError(env.Body.Fault.message())
	}
	return env, nil
}

// parseErrorResponse prefers the SOAP fault carried by a 500 over the bare
// status, since the fault string is what operators can act on.
func parseErrorResponse(statusCode int, body []byte) error {
	if env, err := decodeEnvelope(body); err == nil && env.Body.Fault != nil {
		return model.NewSOAPFaultError(env.Body.Fault.message())
	}
	return model.NewHTTPError(statusCode)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
