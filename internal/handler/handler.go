// Package handler provides the HTTP admin endpoints and MCP tools for the
// distributor integration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
)

// Scrubber checks one page of products against the distributor.
type Scrubber interface {
	Scrub(ctx context.Context, kind model.ProductKind, page int) (*model.ScrubResult, error)
	Batches(ctx context.Context, kind model.ProductKind) ([]model.Batch, error)
}

// Syncer runs one batch of the full inventory update.
type Syncer interface {
	Sync(ctx context.Context, kind model.ProductKind, batch int) (*model.SyncResult, error)
}

// Placer places a distributor order for one order line.
type Placer interface {
	Place(ctx context.Context, orderID, productID, itemID int64) (*model.OrderResult, error)
}

// Sweeper runs the tracking and completion sweep.
type Sweeper interface {
	Run(ctx context.Context) (*model.SweepSummary, error)
}

// Services are the operations the handler exposes. Metrics may be nil.
type Services struct {
	Distributor adapter.Distributor
	Scrubber    Scrubber
	Syncer      Syncer
	Orders      Placer
	Sweeper     Sweeper
	Metrics     http.Handler
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// New creates a new Handler with the given services and logger.
func New(svc Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Legacy ajax entry point, dispatched on ?action=
	mux.HandleFunc("GET /admin-ajax", h.handleAjax)
	mux.HandleFunc("GET /wp-admin/admin-ajax.php", h.handleAjax)

	// REST-style admin endpoints
	mux.HandleFunc("GET /atd/inventory-scrubber", h.handleScrub)
	mux.HandleFunc("GET /atd/inventory-batches", h.handleBatches)
	mux.HandleFunc("POST /atd/inventory-sync", h.handleSync)
	mux.HandleFunc("GET /atd/order", h.handleOrder)
	mux.HandleFunc("POST /atd/tracking-sweep", h.handleSweep)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	if h.svc.Metrics != nil {
		mux.Handle("GET /metrics", h.svc.Metrics)
	}

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

type healthResponse struct {
	Status     string   `json:"status"`
	Configured bool     `json:"distributor_configured"`
	Missing    []string `json:"missing_config,omitempty"`
}

// handleHealth reports liveness. An unconfigured distributor does not make
// the service unhealthy; it is surfaced so operators notice.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if d := h.svc.Distributor; d != nil {
		resp.Configured = d.Configured()
		resp.Missing = d.MissingConfig()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
		if apiErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("request failed", slog.String("code", apiErr.Code), slog.String("error", err.Error()))
		}
	} else {
		// Wrap unexpected errors
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
