package tracking

import (
	"strings"
	"time"

	"atd-sync/internal/model"
)

// Providers written to the shipment-tracking list.
const (
	ProviderUPS         = "UPS"
	ProviderFedex       = "Fedex"
	ProviderFlexForward = "Flex Forward"
)

// ShipmentFor maps the distributor's ship method onto a tracking entry.
// UPS shipments are tracked with UPS, the distributor's own fleet through
// the Flex Forward portal at the supplied URL, everything else with Fedex.
// Matching is case-sensitive on a substring, as ship methods look like
// "UPS Ground" or "ATD Delivery".
func ShipmentFor(shipMethod, number, trackingURL string, shipped time.Time) model.ShipmentTracking {
	t := model.ShipmentTracking{TrackingNumber: number, DateShipped: shipped}
	switch {
	case strings.Contains(shipMethod, "UPS"):
		t.TrackingProvider = ProviderUPS
	case strings.Contains(shipMethod, "ATD"):
		t.CustomTrackingProvider = ProviderFlexForward
		t.CustomTrackingLink = trackingURL
	default:
		t.TrackingProvider = ProviderFedex
	}
	return t
}

// ProviderName is the display name of whichever provider t uses.
func ProviderName(t model.ShipmentTracking) string {
	if t.CustomTrackingProvider != "" {
		return t.CustomTrackingProvider
	}
	return t.TrackingProvider
}
