// Package postgres is the PostgreSQL Store. Claims and the write-once
// external order id are single conditional UPDATE statements, so concurrent
// callers across processes are serialized by the database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atd-sync/internal/model"
	"atd-sync/internal/store"
)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements store.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connected to postgres", "host", poolCfg.ConnConfig.Host, "database", poolCfg.ConnConfig.Database)
	return &Store{pool: pool, logger: logger}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for migrations and tests.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// === Products ===

const productColumns = `id, sku, brand, weight::text, tags, stock, stock_status,
	hidden_out_of_stock, not_present_upstream, local_stock,
	regular_price::text, price::text, cost::text, attributes,
	rebate_description, rebate_url, updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p                         model.Product
		weight, regular, price, c string
		status                    string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Brand, &weight, &p.Tags, &p.Stock, &status,
		&p.HiddenOutOfStock, &p.NotPresentUpstream, &p.LocalStock,
		&regular, &price, &c, &p.Attributes,
		&p.RebateDescription, &p.RebateURL, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.StockStatus = model.StockStatus(status)
	p.Weight = model.AmountOrZero(weight)
	p.RegularPrice = model.AmountOrZero(regular)
	p.Price = model.AmountOrZero(price)
	p.Cost = model.AmountOrZero(c)
	return &p, nil
}

func (s *Store) CountProductsByTag(ctx context.Context, tag string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE $1 = ANY(tags)`, tag).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting products tagged %s: %w", tag, err)
	}
	return n, nil
}

func (s *Store) ListProductsByTag(ctx context.Context, tag string, page, perPage int) ([]model.Product, error) {
	if page < 1 || perPage < 1 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE $1 = ANY(tags) ORDER BY id LIMIT $2 OFFSET $3`,
		tag, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("listing products tagged %s: %w", tag, err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("selecting product %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) SaveProduct(ctx context.Context, p *model.Product) error {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE products SET
			sku = $2, brand = $3, weight = $4::numeric, tags = $5, stock = $6,
			stock_status = $7, hidden_out_of_stock = $8, not_present_upstream = $9,
			local_stock = $10, regular_price = $11::numeric, price = $12::numeric,
			cost = $13::numeric, attributes = $14, rebate_description = $15,
			rebate_url = $16, updated_at = now()
		WHERE id = $1`,
		p.ID, p.SKU, p.Brand, p.Weight.String(), tags, p.Stock,
		string(p.StockStatus), p.HiddenOutOfStock, p.NotPresentUpstream,
		p.LocalStock, p.RegularPrice.String(), p.Price.String(),
		p.Cost.String(), attrs, p.RebateDescription, p.RebateURL,
	)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID, model.ErrNotFound)
	}
	return nil
}

// === Orders ===

func (s *Store) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	var (
		o         model.Order
		status    string
		published *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, number, status, created_at, shipping, billing_phone, billing_email, completion_published_at
		FROM orders WHERE id = $1`, id).Scan(
		&o.ID, &o.Number, &status, &o.CreatedAt, &o.Shipping, &o.BillingPhone, &o.BillingEmail, &published,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("selecting order %d: %w", id, err)
	}
	o.Status = model.OrderStatus(status)
	if published != nil {
		o.CompletionPublishedAt = *published
	}
	return &o, nil
}

const itemColumns = `i.id, i.order_id, i.product_id, i.type, i.quantity,
	i.atd_order_id, i.atd_order_tracking_number, i.atd_order_lock`

func scanItem(row pgx.Row) (*model.OrderItem, error) {
	var it model.OrderItem
	if err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.Type, &it.Quantity,
		&it.ExternalOrderID, &it.TrackingNumber, &it.ProcessingLock,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) queryItems(ctx context.Context, sql string, args ...any) ([]model.OrderItem, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *Store) GetOrderItem(ctx context.Context, id int64) (*model.OrderItem, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM order_items i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order item %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("selecting order item %d: %w", id, err)
	}
	return it, nil
}

func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	items, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM order_items i WHERE i.order_id = $1 ORDER BY i.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", orderID, err)
	}
	return items, nil
}

func (s *Store) itemExists(ctx context.Context, itemID int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order item %d: %w", itemID, err)
	}
	if !exists {
		return fmt.Errorf("order item %d: %w", itemID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ClaimOrderItem(ctx context.Context, itemID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE order_items SET atd_order_lock = TRUE
		WHERE id = $1 AND NOT atd_order_lock AND atd_order_id = ''`, itemID)
	if err != nil {
		return false, fmt.Errorf("claiming order item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.itemExists(ctx, itemID)
}

func (s *Store) ReleaseOrderItem(ctx context.Context, itemID int64) error {
	if _, err := s.pool.Exec(ctx, `UPDATE order_items SET atd_order_lock = FALSE WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("releasing order item %d: %w", itemID, err)
	}
	return nil
}

func (s *Store) SetExternalOrderID(ctx context.Context, itemID int64, externalID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE order_items SET atd_order_id = $2
		WHERE id = $1 AND atd_order_id = ''`, itemID, externalID)
	if err != nil {
		return false, fmt.Errorf("setting external order id on item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.itemExists(ctx, itemID)
}

func (s *Store) SetTrackingNumber(ctx context.Context, itemID int64, number string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE order_items SET atd_order_tracking_number = $2 WHERE id = $1`, itemID, number)
	if err != nil {
		return fmt.Errorf("setting tracking number on item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order item %d: %w", itemID, model.ErrNotFound)
	}
	return nil
}

func terminalStatuses() []string {
	out := make([]string, len(model.TerminalStatuses))
	for i, st := range model.TerminalStatuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) ListItemsAwaitingTracking(ctx context.Context, w model.Window) ([]model.OrderItem, error) {
	items, err := s.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE i.atd_order_id <> '' AND i.atd_order_tracking_number = ''
		  AND o.created_at BETWEEN $1 AND $2
		  AND o.status <> ALL($3)
		ORDER BY i.id`, w.From, w.To, terminalStatuses())
	if err != nil {
		return nil, fmt.Errorf("listing items awaiting tracking: %w", err)
	}
	return items, nil
}

func (s *Store) ListShippedItems(ctx context.Context, w model.Window) ([]model.OrderItem, error) {
	items, err := s.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE i.atd_order_tracking_number <> ''
		  AND o.created_at BETWEEN $1 AND $2
		  AND o.status <> ALL($3)
		ORDER BY i.id`, w.From, w.To, terminalStatuses())
	if err != nil {
		return nil, fmt.Errorf("listing shipped items: %w", err)
	}
	return items, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUnpublishedCompletions(ctx context.Context, w model.Window) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND completion_published_at IS NULL
		  AND created_at BETWEEN $2 AND $3
		ORDER BY id`, string(model.StatusCompleted), w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished completions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning unpublished completions: %w", err)
	}
	return ids, nil
}

func (s *Store) MarkCompletionPublished(ctx context.Context, orderID int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET completion_published_at = $2 WHERE id = $1`, orderID, at)
	if err != nil {
		return fmt.Errorf("marking completion of order %d published: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
	}
	return nil
}

// === Shipment tracking ===

func (s *Store) ListShipmentTrackings(ctx context.Context, orderID int64) ([]model.ShipmentTracking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, `+trackingColumns+`
		FROM shipment_trackings WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing shipment trackings of order %d: %w", orderID, err)
	}
	pending, err := scanTrackings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]model.ShipmentTracking, len(pending))
	for i, p := range pending {
		out[i] = p.Tracking
	}
	return out, nil
}

const trackingColumns = `tracking_number, tracking_provider, custom_tracking_provider,
	custom_tracking_link, date_shipped, published_at`

func scanTrackings(rows pgx.Rows) ([]model.PendingTracking, error) {
	defer rows.Close()
	var out []model.PendingTracking
	for rows.Next() {
		var (
			p         model.PendingTracking
			published *time.Time
		)
		t := &p.Tracking
		if err := rows.Scan(&p.OrderID, &t.TrackingNumber, &t.TrackingProvider, &t.CustomTrackingProvider,
			&t.CustomTrackingLink, &t.DateShipped, &published); err != nil {
			return nil, fmt.Errorf("scanning shipment tracking: %w", err)
		}
		if published != nil {
			t.PublishedAt = *published
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddShipmentTracking(ctx context.Context, orderID int64, t model.ShipmentTracking) error {
	var published *time.Time
	if !t.PublishedAt.IsZero() {
		published = &t.PublishedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO shipment_trackings
			(order_id, tracking_number, tracking_provider, custom_tracking_provider, custom_tracking_link, date_shipped, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		orderID, t.TrackingNumber, t.TrackingProvider, t.CustomTrackingProvider, t.CustomTrackingLink, t.DateShipped, published)
	if err != nil {
		return fmt.Errorf("adding shipment tracking to order %d: %w", orderID, err)
	}
	return nil
}

func (s *Store) ListUnpublishedTrackings(ctx context.Context, w model.Window) ([]model.PendingTracking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.order_id, `+trackingColumns+`
		FROM shipment_trackings t JOIN orders o ON o.id = t.order_id
		WHERE t.published_at IS NULL AND o.created_at BETWEEN $1 AND $2
		ORDER BY t.order_id, t.id`, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished shipment trackings: %w", err)
	}
	return scanTrackings(rows)
}

// MarkTrackingPublished stamps the oldest unpublished entry carrying number.
func (s *Store) MarkTrackingPublished(ctx context.Context, orderID int64, number string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE shipment_trackings SET published_at = $3
		WHERE id = (
			SELECT id FROM shipment_trackings
			WHERE order_id = $1 AND tracking_number = $2 AND published_at IS NULL
			ORDER BY id LIMIT 1
		)`, orderID, number, at)
	if err != nil {
		return fmt.Errorf("marking shipment tracking %s on order %d published: %w", number, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shipment tracking %s on order %d: %w", number, orderID, model.ErrNotFound)
	}
	return nil
}

// === Jobs ===

func (s *Store) ClaimJob(ctx context.Context, name string, now time.Time, staleAfter time.Duration) (bool, error) {
	var claimed string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_guards (name, running, start_time)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (name) DO UPDATE SET running = TRUE, start_time = EXCLUDED.start_time
		WHERE NOT job_guards.running
		   OR (COALESCE(job_guards.start_time, '-infinity') < $3
		       AND COALESCE(job_guards.end_time, '-infinity') < $3)
		RETURNING name`, name, now, now.Add(-staleAfter)).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming job %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) ReleaseJob(ctx context.Context, name string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_guards (name, running, end_time) VALUES ($1, FALSE, $2)
		ON CONFLICT (name) DO UPDATE SET running = FALSE, end_time = EXCLUDED.end_time`, name, now)
	if err != nil {
		return fmt.Errorf("releasing job %s: %w", name, err)
	}
	return nil
}

// === Seeding ===

// InsertProduct adds a product row. Used by seeding and tests.
func (s *Store) InsertProduct(ctx context.Context, p model.Product) error {
	if _, err := s.pool.Exec(ctx, `INSERT INTO products (id) VALUES ($1)`, p.ID); err != nil {
		return fmt.Errorf("inserting product %d: %w", p.ID, err)
	}
	return s.SaveProduct(ctx, &p)
}

// InsertOrder adds an order and its lines in one transaction.
func (s *Store) InsertOrder(ctx context.Context, o model.Order, items []model.OrderItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, number, status, created_at, shipping, billing_phone, billing_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Number, string(o.Status), o.CreatedAt, o.Shipping, o.BillingPhone, o.BillingEmail); err != nil {
		return fmt.Errorf("inserting order %d: %w", o.ID, err)
	}
	for _, it := range items {
		typ := it.Type
		if typ == "" {
			typ = model.ItemTypeLineItem
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items
				(id, order_id, product_id, type, quantity, atd_order_id, atd_order_tracking_number, atd_order_lock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, it.ProductID, typ, it.Quantity, it.ExternalOrderID, it.TrackingNumber, it.ProcessingLock); err != nil {
			return fmt.Errorf("inserting order item %d: %w", it.ID, err)
		}
	}
	return tx.Commit(ctx)
}
