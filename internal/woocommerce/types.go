package woocommerce

// WooTrackingRequest is the payload for POST
// /wc-shipment-tracking/v3/orders/{id}/shipment-trackings.
type WooTrackingRequest struct {
	TrackingProvider       string `json:"tracking_provider,omitempty"`
	CustomTrackingProvider string `json:"custom_tracking_provider,omitempty"`
	CustomTrackingLink     string `json:"custom_tracking_link,omitempty"`
	TrackingNumber         string `json:"tracking_number"`
	DateShipped            string `json:"date_shipped,omitempty"` // YYYY-MM-DD
}

// WooTrackingResponse is one entry of the shipment-tracking list.
type WooTrackingResponse struct {
	TrackingID             string `json:"tracking_id"`
	TrackingProvider       string `json:"tracking_provider"`
	CustomTrackingProvider string `json:"custom_tracking_provider"`
	TrackingNumber         string `json:"tracking_number"`
	TrackingLink           string `json:"tracking_link"`
}

// WooOrderUpdate is the payload for PUT /wc/v3/orders/{id}.
type WooOrderUpdate struct {
	Status string `json:"status"`
}

// WooOrder is the subset of the REST v3 order resource this client reads.
type WooOrder struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Status string `json:"status"`
}

// WooErrorResponse represents a WooCommerce API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}
