// Package store owns the shopping cart and order history of one shopper.
//
// Every mutation is applied in memory and published to subscribers before it
// returns; the changed collections are then mirrored to durable storage in the
// background. Storage failures never reach the caller: the store keeps
// working from memory and logs the failure.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/storage"
	"github.com/ecobazaar/storefront/internal/storage/memory"
	"github.com/ecobazaar/storefront/pkg/logger"
	"github.com/ecobazaar/storefront/pkg/tracing"
)

// hydrateTimeout bounds each read made while opening a store.
const hydrateTimeout = 3 * time.Second

// OrderListener is notified after an order has been committed. It runs on its
// own goroutine and cannot affect the order.
type OrderListener interface {
	OrderPlaced(ctx context.Context, session string, order domain.Order)
}

// OrderListenerFunc adapts a function to OrderListener.
type OrderListenerFunc func(ctx context.Context, session string, order domain.Order)

func (f OrderListenerFunc) OrderPlaced(ctx context.Context, session string, order domain.Order) {
	f(ctx, session, order)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for order ids and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOrderListener registers l for placed orders. Listeners accumulate; each
// one is called on its own goroutine.
func WithOrderListener(l OrderListener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// WithSession labels the store's logs and order notifications.
func WithSession(id string) Option {
	return func(s *Store) { s.session = id }
}

// Store holds one cart and one order history. It is safe for concurrent use;
// mutations are serialized.
type Store struct {
	mu          sync.Mutex
	cart        []domain.LineItem
	orders      []domain.Order
	lastOrderID int64
	version     uint64
	subs        map[uint64]chan Snapshot
	nextSub     uint64

	persist   *persister
	logger    *slog.Logger
	now       func() time.Time
	listeners []OrderListener
	session   string
	notifying sync.WaitGroup
}

// Open hydrates a store from kv. Absent, malformed or unreadable collections
// start empty; Open never fails. A nil kv keeps state in memory only.
func Open(ctx context.Context, kv storage.KV, l *slog.Logger, opts ...Option) *Store {
	if kv == nil {
		kv = memory.New()
	}
	if l == nil {
		l = slog.Default()
	}

	s := &Store{
		subs: make(map[uint64]chan Snapshot),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = l

	ctx, span := tracing.Start(ctx, "store.Open")
	defer span.End()

	bg := l
	if s.session != "" {
		bg = l.With(slog.String("session_id", s.session))
	}
	s.cart = mergeDuplicates(load[domain.LineItem](ctx, kv, storage.KeyCart, bg))
	s.orders = load[domain.Order](ctx, kv, storage.KeyOrders, bg)
	for _, o := range s.orders {
		s.lastOrderID = max(s.lastOrderID, o.ID)
	}
	s.persist = newPersister(kv, bg)

	bg.DebugContext(ctx, "store opened",
		slog.Int("cart_items", len(s.cart)),
		slog.Int("orders", len(s.orders)),
	)
	return s
}

func load[T any](ctx context.Context, kv storage.KV, key string, l *slog.Logger) []T {
	ctx, cancel := context.WithTimeout(ctx, hydrateTimeout)
	defer cancel()

	data, err := kv.Get(ctx, key)
	if err != nil {
		if !storage.IsNotFound(err) {
			l.WarnContext(ctx, "failed to read stored collection, starting empty",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return []T{}
	}

	var v []T
	if err := json.Unmarshal(data, &v); err != nil {
		l.WarnContext(ctx, "stored collection is malformed, starting empty",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return []T{}
	}
	if v == nil {
		v = []T{}
	}
	return v
}

// mergeDuplicates folds entries that name the same product into the first
// one, summing quantities.
func mergeDuplicates(items []domain.LineItem) []domain.LineItem {
	out := items[:0:0]
	for _, item := range items {
		if i := indexOf(out, domain.Product{ID: item.ID, Name: item.Name}); i >= 0 {
			out[i].Qty = out[i].Quantity() + item.Quantity()
			continue
		}
		item.Qty = item.Quantity()
		out = append(out, item)
	}
	return out
}

func indexOf(items []domain.LineItem, p domain.Product) int {
	for i, item := range items {
		if item.Matches(p) {
			return i
		}
	}
	return -1
}

func (s *Store) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.session != "" {
		attrs = append(attrs, attribute.String("session.id", s.session))
	}
	return tracing.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddToCart increments the entry for p, or appends p with quantity 1 when the
// cart has no entry for it.
func (s *Store) AddToCart(ctx context.Context, p domain.Product) {
	ctx, span := s.span(ctx, "store.AddToCart", attribute.String("product.id", p.ID.String()))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := domain.CloneItems(s.cart)
	if i := indexOf(cart, p); i >= 0 {
		cart[i].Qty = cart[i].Quantity() + 1
	} else {
		cart = append(cart, domain.NewLineItem(p))
	}
	s.cart = cart
	s.commitLocked(ctx, "add_to_cart", storage.KeyCart)
}

// RemoveFromCart deletes the entry at position. An out-of-range position is
// ignored.
func (s *Store) RemoveFromCart(ctx context.Context, position int) {
	ctx, span := s.span(ctx, "store.RemoveFromCart", attribute.Int("cart.position", position))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(ctx, position)
}

func (s *Store) removeLocked(ctx context.Context, position int) {
	if !s.validLocked(ctx, position) {
		return
	}
	cart := make([]domain.LineItem, 0, len(s.cart)-1)
	cart = append(cart, s.cart[:position]...)
	cart = append(cart, s.cart[position+1:]...)
	s.cart = cart
	s.commitLocked(ctx, "remove_from_cart", storage.KeyCart)
}

// UpdateQuantity sets the quantity of the entry at position. A quantity of
// zero or less removes the entry; an out-of-range position is ignored.
func (s *Store) UpdateQuantity(ctx context.Context, position, qty int) {
	ctx, span := s.span(ctx, "store.UpdateQuantity",
		attribute.Int("cart.position", position),
		attribute.Int("cart.quantity", qty),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		s.removeLocked(ctx, position)
		return
	}
	if !s.validLocked(ctx, position) {
		return
	}
	cart := domain.CloneItems(s.cart)
	cart[position].Qty = qty
	s.cart = cart
	s.commitLocked(ctx, "update_quantity", storage.KeyCart)
}

func (s *Store) validLocked(ctx context.Context, position int) bool {
	if position >= 0 && position < len(s.cart) {
		return true
	}
	s.log(ctx).DebugContext(ctx, "ignoring out-of-range cart position",
		slog.Int("position", position),
		slog.Int("cart_items", len(s.cart)),
	)
	return false
}

// PlaceOrder commits the cart as a new order and empties the cart. It reports
// false, and records nothing, when the cart is empty.
func (s *Store) PlaceOrder(ctx context.Context) (domain.Order, bool) {
	ctx, span := s.span(ctx, "store.PlaceOrder")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart) == 0 {
		s.log(ctx).DebugContext(ctx, "ignoring checkout of empty cart")
		return domain.Order{}, false
	}

	now := s.now()
	order := domain.NewOrder(domain.NextOrderID(now, s.lastOrderID), now, s.cart)
	s.lastOrderID = order.ID
	s.orders = append(s.orders, order)
	s.cart = []domain.LineItem{}

	ordersPlaced.Inc()
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	// Orders go first so an interrupted pair of writes never loses an order.
	s.commitLocked(ctx, "place_order", storage.KeyOrders, storage.KeyCart)

	s.log(ctx).InfoContext(ctx, "order placed",
		slog.Int64("order_id", order.ID),
		slog.Int("items", len(order.Items)),
		slog.String("total", order.Total.String()),
	)

	for _, l := range s.listeners {
		s.notifying.Add(1)
		go func(ctx context.Context, o domain.Order) {
			defer s.notifying.Done()
			l.OrderPlaced(ctx, s.session, o)
		}(context.WithoutCancel(ctx), order.Clone())
	}
	return order.Clone(), true
}

// commitLocked records an applied mutation: it bumps the version, queues the
// changed keys for persistence and publishes the new snapshot.
func (s *Store) commitLocked(ctx context.Context, op string, keys ...string) {
	s.version++
	mutationsTotal.WithLabelValues(op).Inc()

	for _, key := range keys {
		data, err := s.encodeLocked(key)
		if err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to encode collection",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.persist.enqueue(key, data)
	}

	s.publishLocked(s.snapshotLocked())

	s.log(ctx).DebugContext(ctx, "store mutated",
		slog.String("op", op),
		slog.Uint64("version", s.version),
		slog.Int("cart_items", len(s.cart)),
		slog.Int("orders", len(s.orders)),
	)
}

func (s *Store) encodeLocked(key string) ([]byte, error) {
	if key == storage.KeyOrders {
		return json.Marshal(s.orders)
	}
	return json.Marshal(s.cart)
}

// CalculateTotal returns the total of items. See domain.CalculateTotal.
func (s *Store) CalculateTotal(items []domain.LineItem) decimal.Decimal {
	return domain.CalculateTotal(items)
}

// Cart returns a copy of the cart in display order.
func (s *Store) Cart() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.cart)
}

// Orders returns a copy of the order history, oldest first.
func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(s.orders)
}

// Snapshot returns a consistent copy of both collections with derived totals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	snap.Orders = cloneOrders(s.orders)
	return snap
}

// quiescent reports whether the store has no subscribers and no write left to
// make, so forgetting it loses nothing.
func (s *Store) quiescent() bool {
	s.mu.Lock()
	subs := len(s.subs)
	s.mu.Unlock()
	return subs == 0 && s.persist.idle()
}

// Flush waits until every queued write has been attempted and returns the
// write errors, if any.
func (s *Store) Flush(ctx context.Context) error {
	return s.persist.flush(ctx)
}

// Close flushes pending writes, stops background persistence and waits for
// order listeners. Subscriptions are closed. The store stays readable and
// mutable in memory afterwards.
func (s *Store) Close(ctx context.Context) error {
	err := s.persist.close(ctx)

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.notifying.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func cloneOrders(orders []domain.Order) []domain.Order {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

// log returns the store logger enriched from ctx.
func (s *Store) log(ctx context.Context) *slog.Logger {
	l := logger.WithContext(ctx, s.logger)
	if s.session != "" && logger.SessionIDFromContext(ctx) == "" {
		l = l.With(slog.String("session_id", s.session))
	}
	return l
}
