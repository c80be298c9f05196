package model

// OrderResult is returned after a successful drop-ship placement.
type OrderResult struct {
	ATDOrderID  string `json:"atd_order_id"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url"`
}

// ScrubResult summarizes one inventory scrub page.
type ScrubResult struct {
	Message         string   `json:"message"`
	ProcessedCount  int      `json:"processed_count"`
	OutOfStockCount int      `json:"out_of_stock_count"`
	OutOfStockSKUs  []string `json:"out_of_stock_skus"`
	APIErrorCount   int      `json:"api_error_count"`
}

// SyncResult summarizes one full-sync batch.
type SyncResult struct {
	RunID          string      `json:"run_id"`
	Kind           ProductKind `json:"type"`
	Batch          int         `json:"batch"`
	ProductCount   int         `json:"product_count"`
	UpdatedCount   int         `json:"updated_count"`
	PricedCount    int         `json:"priced_count"`
	OutOfStockSKUs []string    `json:"out_of_stock_skus"`
	APIErrorCount  int         `json:"api_error_count"`
}

// Batch is one scrub page as listed on the admin screen.
type Batch struct {
	Page  int `json:"page"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// SweepSummary is printed at the end of a tracking sweep.
type SweepSummary struct {
	RunID              string  `json:"run_id"`
	Checked            int     `json:"checked"`
	TrackingUpdated    int     `json:"tracking_updated"`
	TrackingRegistered int     `json:"tracking_registered"`
	OrdersCompleted    int     `json:"orders_completed"`
	CompletedOrderIDs  []int64 `json:"completed_order_ids"`
	APIErrorCount      int     `json:"api_error_count"`

	// Storefront mirror counters. Zero when no publisher is configured.
	TrackingPublished    int `json:"tracking_published"`
	CompletionsPublished int `json:"completions_published"`
	PublishErrorCount    int `json:"publish_error_count"`
}
