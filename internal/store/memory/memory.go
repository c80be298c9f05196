// Package memory is an in-process Store for development and tests. All state
// sits behind one mutex, which also makes the claim operations atomic.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"atd-sync/internal/model"
	"atd-sync/internal/store"
)

// Seed is the JSON layout accepted by Load.
type Seed struct {
	Products          []model.Product                    `json:"products"`
	Orders            []model.Order                      `json:"orders"`
	OrderItems        []model.OrderItem                  `json:"order_items"`
	ShipmentTrackings map[int64][]model.ShipmentTracking `json:"shipment_trackings"`
}

// Store implements store.Store in memory.
type Store struct {
	mu        sync.Mutex
	products  map[int64]*model.Product
	orders    map[int64]*model.Order
	items     map[int64]*model.OrderItem
	trackings map[int64][]model.ShipmentTracking
	jobs      map[string]store.JobState
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		products:  make(map[int64]*model.Product),
		orders:    make(map[int64]*model.Order),
		items:     make(map[int64]*model.OrderItem),
		trackings: make(map[int64][]model.ShipmentTracking),
		jobs:      make(map[string]store.JobState),
	}
}

// Load returns a store seeded from a JSON file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	s := New()
	s.Apply(seed)
	return s, nil
}

// Apply adds everything in seed, replacing records with the same ID.
func (s *Store) Apply(seed Seed) {
	for i := range seed.Products {
		s.PutProduct(seed.Products[i])
	}
	for i := range seed.Orders {
		s.PutOrder(seed.Orders[i])
	}
	for i := range seed.OrderItems {
		s.PutOrderItem(seed.OrderItems[i])
	}
	s.mu.Lock()
	for orderID, list := range seed.ShipmentTrackings {
		s.trackings[orderID] = append([]model.ShipmentTracking(nil), list...)
	}
	s.mu.Unlock()
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(&p)
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = &o
}

// PutOrderItem inserts or replaces an order line.
func (s *Store) PutOrderItem(it model.OrderItem) {
	if it.Type == "" {
		it.Type = model.ItemTypeLineItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = &it
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// === Products ===

func (s *Store) CountProductsByTag(_ context.Context, tag string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.products {
		if p.HasAnyTag(tag) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListProductsByTag(_ context.Context, tag string, page, perPage int) ([]model.Product, error) {
	if page < 1 || perPage < 1 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.products))
	for id, p := range s.products {
		if p.HasAnyTag(tag) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	start := (page - 1) * perPage
	if start >= len(ids) {
		return nil, nil
	}
	end := min(start+perPage, len(ids))

	out := make([]model.Product, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, *cloneProduct(s.products[id]))
	}
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, model.ErrNotFound)
	}
	return cloneProduct(p), nil
}

func (s *Store) SaveProduct(_ context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return fmt.Errorf("product %d: %w", p.ID, model.ErrNotFound)
	}
	s.products[p.ID] = cloneProduct(p)
	return nil
}

// === Orders ===

func (s *Store) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, model.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *Store) GetOrderItem(_ context.Context, id int64) (*model.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("order item %d: %w", id, model.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (s *Store) ListOrderItems(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OrderItem
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, *it)
		}
	}
	sortItems(out)
	return out, nil
}

func (s *Store) ClaimOrderItem(_ context.Context, itemID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return false, fmt.Errorf("order item %d: %w", itemID, model.ErrNotFound)
	}
	if it.ProcessingLock || it.ExternalOrderID != "" {
		return false, nil
	}
	it.ProcessingLock = true
	return true, nil
}

func (s *Store) ReleaseOrderItem(_ context.Context, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[itemID]; ok {
		it.ProcessingLock = false
	}
	return nil
}

func (s *Store) SetExternalOrderID(_ context.Context, itemID int64, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return false, fmt.Errorf("order item %d: %w", itemID, model.ErrNotFound)
	}
	if it.ExternalOrderID != "" {
		return false, nil
	}
	it.ExternalOrderID = externalID
	return true, nil
}

func (s *Store) SetTrackingNumber(_ context.Context, itemID int64, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("order item %d: %w", itemID, model.ErrNotFound)
	}
	it.TrackingNumber = number
	return nil
}

func (s *Store) ListItemsAwaitingTracking(_ context.Context, w model.Window) ([]model.OrderItem, error) {
	return s.listInWindow(w, func(it *model.OrderItem) bool {
		return it.ExternalOrderID != "" && it.TrackingNumber == ""
	}), nil
}

func (s *Store) ListShippedItems(_ context.Context, w model.Window) ([]model.OrderItem, error) {
	return s.listInWindow(w, func(it *model.OrderItem) bool {
		return it.TrackingNumber != ""
	}), nil
}

func (s *Store) listInWindow(w model.Window, match func(*model.OrderItem) bool) []model.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OrderItem
	for _, it := range s.items {
		if !match(it) {
			continue
		}
		o, ok := s.orders[it.OrderID]
		if !ok || o.Status.IsTerminal() || !w.Contains(o.CreatedAt) {
			continue
		}
		out = append(out, *it)
	}
	sortItems(out)
	return out
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID int64, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
	}
	o.Status = status
	return nil
}

func (s *Store) ListUnpublishedCompletions(_ context.Context, w model.Window) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, o := range s.orders {
		if o.Status == model.StatusCompleted && o.CompletionPublishedAt.IsZero() && w.Contains(o.CreatedAt) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) MarkCompletionPublished(_ context.Context, orderID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
	}
	o.CompletionPublishedAt = at
	return nil
}

// === Shipment tracking ===

func (s *Store) ListShipmentTrackings(_ context.Context, orderID int64) ([]model.ShipmentTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ShipmentTracking(nil), s.trackings[orderID]...), nil
}

func (s *Store) AddShipmentTracking(_ context.Context, orderID int64, t model.ShipmentTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackings[orderID] = append(s.trackings[orderID], t)
	return nil
}

func (s *Store) ListUnpublishedTrackings(_ context.Context, w model.Window) ([]model.PendingTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderIDs := make([]int64, 0, len(s.trackings))
	for id := range s.trackings {
		orderIDs = append(orderIDs, id)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	var out []model.PendingTracking
	for _, id := range orderIDs {
		o, ok := s.orders[id]
		if !ok || !w.Contains(o.CreatedAt) {
			continue
		}
		for _, t := range s.trackings[id] {
			if t.PublishedAt.IsZero() {
				out = append(out, model.PendingTracking{OrderID: id, Tracking: t})
			}
		}
	}
	return out, nil
}

func (s *Store) MarkTrackingPublished(_ context.Context, orderID int64, number string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.trackings[orderID]
	for i := range list {
		if list[i].TrackingNumber == number && list[i].PublishedAt.IsZero() {
			list[i].PublishedAt = at
			return nil
		}
	}
	return fmt.Errorf("shipment tracking %s on order %d: %w", number, orderID, model.ErrNotFound)
}

// === Jobs ===

func (s *Store) ClaimJob(_ context.Context, name string, now time.Time, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if ok && j.Running && !j.Stale(now, staleAfter) {
		return false, nil
	}
	s.jobs[name] = store.JobState{Name: name, Running: true, StartedAt: now, EndedAt: j.EndedAt}
	return true, nil
}

func (s *Store) ReleaseJob(_ context.Context, name string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[name]
	j.Name = name
	j.Running = false
	j.EndedAt = now
	s.jobs[name] = j
	return nil
}

// Job returns the guard state for name, for inspection.
func (s *Store) Job(name string) (store.JobState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

func cloneProduct(p *model.Product) *model.Product {
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	if p.Attributes != nil {
		cp.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

func sortItems(items []model.OrderItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
