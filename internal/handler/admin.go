package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"atd-sync/internal/inventory"
	"atd-sync/internal/model"
)

// Ajax actions accepted on /admin-ajax.
const (
	ActionInventoryScrubber = "atd_inventory_scrubber"
	ActionOrder             = "atd_order"
)

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

func (h *Handler) handleAjax(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case ActionInventoryScrubber:
		h.handleScrub(w, r)
	case ActionOrder:
		h.handleOrder(w, r)
	default:
		h.writeError(w, model.NewValidationError("action", "unknown action "+strconv.Quote(action)))
	}
}

func (h *Handler) handleScrub(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := model.ParseKind(q.Get("type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	// p is what the admin scrubber page sends; page is accepted as an alias.
	page, err := intParam(q, 1, "p", "page")
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.Scrubber.Scrub(r.Context(), kind, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// BatchesOutput lists the scrub pages of a product type.
type BatchesOutput struct {
	Type    string       `json:"type"`
	Batches []BatchEntry `json:"batches"`
}

// BatchEntry is one scrub page with its admin label.
type BatchEntry struct {
	Page  int    `json:"page"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

func batchesOutput(kind model.ProductKind, batches []model.Batch) *BatchesOutput {
	out := &BatchesOutput{Type: string(kind), Batches: make([]BatchEntry, len(batches))}
	for i, b := range batches {
		out.Batches[i] = BatchEntry{Page: b.Page, Start: b.Start, End: b.End, Label: inventory.BatchLabel(kind, b)}
	}
	return out
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	batches, err := h.svc.Scrubber.Batches(r.Context(), kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batchesOutput(kind, batches))
}

// syncRequest is the optional JSON body of POST /atd/inventory-sync.
type syncRequest struct {
	Type  string `json:"type"`
	Batch int    `json:"batch"`
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	req := syncRequest{Type: r.URL.Query().Get("type")}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Batch == 0 {
		b, err := intParam(r.URL.Query(), 1, "batch")
		if err != nil {
			h.writeError(w, err)
			return
		}
		req.Batch = b
	}

	kind, err := model.ParseKind(req.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.Syncer.Sync(r.Context(), kind, req.Batch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID, err := idParam(q, "order_id", "oid")
	if err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := idParam(q, "product_id", "pid")
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID, err := idParam(q, "order_item_id", "iid")
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.Orders.Place(r.Context(), orderID, productID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Sweeper.Run(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// === Parameter Helpers ===

// firstParam returns the first non-empty value among names and the name it
// was found under.
func firstParam(q url.Values, names ...string) (string, string) {
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v, n
		}
	}
	return "", names[0]
}

// idParam reads a required positive integer id.
func idParam(q url.Values, names ...string) (int64, error) {
	v, name := firstParam(q, names...)
	if v == "" {
		return 0, model.NewValidationError(name, "required")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// intParam reads an optional positive integer, returning def when absent.
func intParam(q url.Values, def int, names ...string) (int, error) {
	v, name := firstParam(q, names...)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, model.NewValidationError(name, "must be a positive integer")
	}
	return n, nil
}

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
