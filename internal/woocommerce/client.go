// Package woocommerce mirrors tracking sweep results to a WooCommerce store
// through its REST API: shipment-tracking entries and order completion.
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atd-sync/internal/model"
	"atd-sync/internal/transport"
)

// REST base paths. Both must include the /wp-json prefix for proper routing.
const (
	restAPIPath      = "/wp-json/wc/v3"
	trackingAPIPath  = "/wp-json/wc-shipment-tracking/v3"
	dateShippedFmt   = "2006-01-02"
	defaultTimeout   = 30 * time.Second
	completedStatus  = "completed"
	maxErrorBodySize = 64 << 10
)

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "ATD-Sync/1.0"

// Config holds WooCommerce REST configuration.
type Config struct {
	StoreURL  string
	APIKey    string
	APISecret string
	Transport transport.Kind
	Timeout   time.Duration

	// HTTPClient overrides the client built from Transport and Timeout.
	HTTPClient *http.Client
}

// Client talks to the WooCommerce REST API v3 with consumer key
// credentials over Basic Auth.
type Client struct {
	httpClient *http.Client
	storeURL   string
	apiKey     string
	apiSecret  string
}

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("API credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport.New(cfg.Transport, timeout),
		}
	}

	return &Client{
		httpClient: httpClient,
		storeURL:   strings.TrimSuffix(cfg.StoreURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
	}, nil
}

// PublishTracking adds a shipment-tracking entry to the order.
func (c *Client) PublishTracking(ctx context.Context, orderID int64, t model.ShipmentTracking) error {
	body := WooTrackingRequest{
		TrackingProvider:       t.TrackingProvider,
		CustomTrackingProvider: t.CustomTrackingProvider,
		CustomTrackingLink:     t.CustomTrackingLink,
		TrackingNumber:         t.TrackingNumber,
	}
	if !t.DateShipped.IsZero() {
		body.DateShipped = t.DateShipped.Format(dateShippedFmt)
	}

	var created WooTrackingResponse
	path := fmt.Sprintf("%s/orders/%d/shipment-trackings", trackingAPIPath, orderID)
	return c.do(ctx, http.MethodPost, path, body, &created)
}

// ListTrackings returns the shipment-tracking entries the storefront holds
// for the order, including ones staff added by hand.
func (c *Client) ListTrackings(ctx context.Context, orderID int64) ([]model.ShipmentTracking, error) {
	var list []WooTrackingResponse
	path := fmt.Sprintf("%s/orders/%d/shipment-trackings", trackingAPIPath, orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	out := make([]model.ShipmentTracking, 0, len(list))
	for _, e := range list {
		out = append(out, model.ShipmentTracking{
			TrackingNumber:         e.TrackingNumber,
			TrackingProvider:       e.TrackingProvider,
			CustomTrackingProvider: e.CustomTrackingProvider,
			CustomTrackingLink:     e.TrackingLink,
		})
	}
	return out, nil
}

// PublishCompleted moves the order to the completed status.
func (c *Client) PublishCompleted(ctx context.Context, orderID int64) error {
	var order WooOrder
	path := fmt.Sprintf("%s/orders/%d", restAPIPath, orderID)
	if err := c.do(ctx, http.MethodPut, path, WooOrderUpdate{Status: completedStatus}, &order); err != nil {
		return err
	}
	if order.Status != "" && order.Status != completedStatus {
		return model.NewInvalidResponseError(fmt.Sprintf("order %d status is %q after update", orderID, order.Status))
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.storeURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setRESTHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewTransportError(fmt.Errorf("reading response: %w", err))
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewInvalidResponseError(fmt.Sprintf("parsing WooCommerce response: %v", err))
	}
	return nil
}

// setRESTHeaders sets headers for WooCommerce REST API v3 requests.
// Unlike the Store API, REST v3 authenticates every call with Basic Auth.
func (c *Client) setRESTHeaders(req *http.Request) {
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// handleErrorResponse reads and parses an error response from WooCommerce.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return c.parseErrorResponse(resp.StatusCode, body)
}

// parseErrorResponse converts WooCommerce error to APIError.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	switch statusCode {
	case 404:
		return model.NewInvalidOrderError()
	case 401, 403:
		return model.NewForbiddenError("WooCommerce authentication failed")
	case 400:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		apiErr := model.NewHTTPError(statusCode)
		if wcErr.Code != "" || wcErr.Message != "" {
			apiErr.Message = fmt.Sprintf("HTTP %d: %s - %s", statusCode, wcErr.Code, wcErr.Message)
		}
		return apiErr
	}
}
