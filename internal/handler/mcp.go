// MCP transport for the admin operations using the official MCP Go SDK.
// Exposes order placement, inventory scrub/sync and the tracking sweep as
// MCP tools so an agent can drive the same workflows as the admin screens.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"atd-sync/internal/model"
)

// === MCP Tool Input Types ===

// PlaceOrderInput is the input schema for place_order tool.
type PlaceOrderInput struct {
	OrderID     int64 `json:"order_id" jsonschema:"store order ID,required"`
	ProductID   int64 `json:"product_id" jsonschema:"product ID on the order line,required"`
	OrderItemID int64 `json:"order_item_id" jsonschema:"order line ID,required"`
}

// ScrubInventoryInput is the input schema for scrub_inventory tool.
type ScrubInventoryInput struct {
	Type string `json:"type,omitempty" jsonschema:"product type: wheel or tire (default wheel)"`
	Page int    `json:"page,omitempty" jsonschema:"1-based page of 2000 products (default 1)"`
}

// SyncInventoryInput is the input schema for sync_inventory tool.
type SyncInventoryInput struct {
	Type  string `json:"type,omitempty" jsonschema:"product type: wheel or tire (default wheel)"`
	Batch int    `json:"batch" jsonschema:"1-based batch number,required"`
}

// InventoryBatchesInput is the input schema for inventory_batches tool.
type InventoryBatchesInput struct {
	Type string `json:"type,omitempty" jsonschema:"product type: wheel or tire (default wheel)"`
}

// SweepTrackingInput is the input schema for sweep_tracking tool. It takes no arguments.
type SweepTrackingInput struct{}

// NewMCPServer creates an MCP server with the admin tools registered.
// The server exposes the same operations as the HTTP endpoints.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "atd-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "ATD distributor integration. Use these tools to place drop-ship orders, " +
				"check inventory against the distributor catalog and pull tracking numbers.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_order",
		Description: "Place a drop-ship order with ATD for one order line. Fails if the line is already ordered or locked.",
	}, h.mcpPlaceOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "scrub_inventory",
		Description: "Check one page of wheel or tire products against ATD and mark missing ones out of stock.",
	}, h.mcpScrubInventory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_inventory",
		Description: "Run one batch of the full inventory update: stock, attributes, rebates and prices.",
	}, h.mcpSyncInventory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "inventory_batches",
		Description: "List the scrub pages for a product type.",
	}, h.mcpInventoryBatches)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sweep_tracking",
		Description: "Pull tracking numbers for placed ATD orders and complete orders whose wheel and tire lines have shipped.",
	}, h.mcpSweepTracking)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpPlaceOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PlaceOrderInput,
) (*mcp.CallToolResult, *model.OrderResult, error) {
	if input.OrderID <= 0 || input.ProductID <= 0 || input.OrderItemID <= 0 {
		return nil, nil, fmt.Errorf("order_id, product_id and order_item_id are required")
	}

	res, err := h.svc.Orders.Place(ctx, input.OrderID, input.ProductID, input.OrderItemID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, res, nil
}

func (h *Handler) mcpScrubInventory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ScrubInventoryInput,
) (*mcp.CallToolResult, *model.ScrubResult, error) {
	kind, err := model.ParseKind(input.Type)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	page := input.Page
	if page == 0 {
		page = 1
	}

	res, err := h.svc.Scrubber.Scrub(ctx, kind, page)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, res, nil
}

func (h *Handler) mcpSyncInventory(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SyncInventoryInput,
) (*mcp.CallToolResult, *model.SyncResult, error) {
	kind, err := model.ParseKind(input.Type)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	res, err := h.svc.Syncer.Sync(ctx, kind, input.Batch)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, res, nil
}

func (h *Handler) mcpInventoryBatches(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input InventoryBatchesInput,
) (*mcp.CallToolResult, *BatchesOutput, error) {
	kind, err := model.ParseKind(input.Type)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	batches, err := h.svc.Scrubber.Batches(ctx, kind)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, batchesOutput(kind, batches), nil
}

func (h *Handler) mcpSweepTracking(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SweepTrackingInput,
) (*mcp.CallToolResult, *model.SweepSummary, error) {
	summary, err := h.svc.Sweeper.Run(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, summary, nil
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code != model.CodeInternal {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
