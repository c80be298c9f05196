package inventory

import (
	"context"
	"log/slog"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
)

// localSource is a warehouse location and the zips whose local stock is
// summed for a product kind.
type localSource struct {
	Location string
	Zips     []string
}

var localSources = map[model.ProductKind]localSource{
	model.KindWheel: {
		Location: "34550",
		Zips:     []string{"18610", "76262", "30084", "33025", "93263", "28092"},
	},
	model.KindTire: {
		Location: "1320769",
		Zips:     []string{"33025", "32503", "33916", "33619", "32303", "33411", "32824"},
	},
}

// LocalStock sums the distributor's local quantity for sku over the fixed
// zip list of kind. For each zip the first record for sku with a positive
// local quantity counts. A failed lookup counts as zero.
func LocalStock(ctx context.Context, dist adapter.Distributor, kind model.ProductKind, sku string, logger *slog.Logger) int {
	src, ok := localSources[kind]
	if !ok {
		return 0
	}

	total := 0
	for _, zip := range src.Zips {
		records, err := dist.GetInventoryByLocation(ctx, src.Location, zip, sku)
		if err != nil {
			logger.WarnContext(ctx, "local inventory lookup failed",
				"sku", sku,
				"location", src.Location,
				"zip", zip,
				"error", err,
			)
			continue
		}
		for _, r := range records {
			if r.SKU == sku && r.HasLocal && r.Local > 0 {
				total += r.Local
				break
			}
		}
	}
	return total
}
