// Package reconcile computes the delta between local state and what the
// distributor reports, so callers only perform the writes that change
// something. Used by the inventory sync for product attributes and by the
// tracking sweep for shipment-tracking entries.
package reconcile

import (
	"sort"
	"strings"

	"atd-sync/internal/model"
)

// AttributeDiff describes the mutations needed to reconcile product attributes.
type AttributeDiff struct {
	ToSet    map[string]string // Attributes with a new or changed value
	ToRemove []string          // Managed attributes no longer reported
}

// IsEmpty returns true if no attribute changes are needed.
func (d *AttributeDiff) IsEmpty() bool {
	return len(d.ToSet) == 0 && len(d.ToRemove) == 0
}

// Apply writes the diff into attrs, allocating the map when nil.
func (d *AttributeDiff) Apply(attrs map[string]string) map[string]string {
	if attrs == nil {
		attrs = make(map[string]string, len(d.ToSet))
	}
	for _, k := range d.ToRemove {
		delete(attrs, k)
	}
	for k, v := range d.ToSet {
		attrs[k] = v
	}
	return attrs
}

// DiffAttributes computes the delta between current and desired attributes.
// Only keys listed in managed are considered; a managed key missing from
// desired (or with an empty value) is removed when currently present.
// Attributes outside managed are never touched.
func DiffAttributes(current, desired map[string]string, managed []string) *AttributeDiff {
	diff := &AttributeDiff{ToSet: make(map[string]string)}

	for _, key := range managed {
		want := strings.TrimSpace(desired[key])
		have, exists := current[key]

		if want == "" {
			if exists {
				diff.ToRemove = append(diff.ToRemove, key)
			}
			continue
		}
		if !exists || have != want {
			diff.ToSet[key] = want
		}
	}

	sort.Strings(diff.ToRemove)
	return diff
}

// TrackingRegistered reports whether number already appears in any of the
// registered shipment-tracking entries. Matching is by substring so numbers
// stored with carrier prefixes or extra whitespace still count.
func TrackingRegistered(entries []model.ShipmentTracking, number string) bool {
	number = strings.TrimSpace(number)
	if number == "" {
		return false
	}
	for _, e := range entries {
		if strings.Contains(e.TrackingNumber, number) {
			return true
		}
	}
	return false
}

// LinesToComplete returns the lines of an order that still block completion:
// line items outside the shipped set. The caller decides which of them are
// blocking by product tag.
func LinesToComplete(all []model.OrderItem, shipped map[int64]bool) []model.OrderItem {
	var rest []model.OrderItem
	for _, it := range all {
		if it.Type != "" && it.Type != model.ItemTypeLineItem {
			continue
		}
		if shipped[it.ID] {
			continue
		}
		rest = append(rest, it)
	}
	return rest
}
