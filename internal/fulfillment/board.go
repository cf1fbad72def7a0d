package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/storage"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
)

// KeyOrders is the storage key holding every seller order.
const KeyOrders = "seller:orders"

// idPrefix and idDigits shape seller order ids: ORD001, ORD002, ...
const (
	idPrefix = "ORD"
	idDigits = 3
)

// StatusChange is one entry of an order's timeline.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Order is a shopper's checkout as the seller handles it.
type Order struct {
	ID       string            `json:"id"`
	OrderID  int64             `json:"order_id"`
	Session  string            `json:"session_id"`
	Items    []domain.LineItem `json:"items"`
	Total    domain.Amount     `json:"total"`
	CarbonKg domain.Amount     `json:"carbon_kg"`
	Status   Status            `json:"status"`
	PlacedAt time.Time         `json:"placed_at"`
	Timeline []StatusChange    `json:"timeline"`
}

func (o Order) clone() Order {
	o.Items = domain.CloneItems(o.Items)
	o.Timeline = append([]StatusChange(nil), o.Timeline...)
	return o
}

// Board keeps seller orders in a storage.KV and writes every change through.
// It implements store.OrderListener so placed orders arrive on their own.
type Board struct {
	kv     storage.KV
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	loaded bool
	orders []Order
	seq    int
}

// NewBoard creates a board over kv.
func NewBoard(kv storage.KV, logger *slog.Logger) *Board {
	return &Board{
		kv:     kv,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OrderPlaced records a new Pending order. A failure to save is logged; the
// shopper's order is unaffected.
func (b *Board) OrderPlaced(ctx context.Context, session string, order domain.Order) {
	if _, err := b.Record(ctx, session, order); err != nil {
		b.logger.ErrorContext(ctx, "failed to record seller order",
			slog.Int64("order_id", order.ID),
			slog.String("session_id", session),
			slog.String("error", err.Error()),
		)
	}
}

// Record adds order as Pending and returns the seller view of it. An order
// already on the board is returned unchanged.
func (b *Board) Record(ctx context.Context, session string, order domain.Order) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.loadLocked(ctx); err != nil {
		return nil, err
	}
	for _, o := range b.orders {
		if o.OrderID == order.ID && o.Session == session {
			o = o.clone()
			return &o, nil
		}
	}

	now := b.now()
	rec := Order{
		ID:       formatID(b.seq + 1),
		OrderID:  order.ID,
		Session:  session,
		Items:    domain.CloneItems(order.Items),
		Total:    order.Total,
		CarbonKg: order.CarbonKg,
		Status:   StatusPending,
		PlacedAt: now,
		Timeline: []StatusChange{{Status: StatusPending, At: now}},
	}
	next := append(append(make([]Order, 0, len(b.orders)+1), b.orders...), rec)
	if err := b.saveLocked(ctx, next); err != nil {
		return nil, err
	}
	b.seq++

	b.logger.InfoContext(ctx, "seller order recorded",
		slog.String("seller_order_id", rec.ID),
		slog.Int64("order_id", order.ID),
	)
	rec = rec.clone()
	return &rec, nil
}

// List returns the orders in the given status, or every order when status is
// empty, oldest first.
func (b *Board) List(ctx context.Context, status Status) ([]Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.loadLocked(ctx); err != nil {
		return nil, err
	}

	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		if status == "" || o.Status == status {
			out = append(out, o.clone())
		}
	}
	return out, nil
}

// Get returns one order by its seller id.
func (b *Board) Get(ctx context.Context, id string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.loadLocked(ctx); err != nil {
		return nil, err
	}
	i := b.indexLocked(id)
	if i < 0 {
		return nil, apperrors.NotFound("order", id)
	}
	o := b.orders[i].clone()
	return &o, nil
}

// SetStatus moves an order to status. Setting the current status again is a
// no-op; delivered and cancelled orders cannot change.
func (b *Board) SetStatus(ctx context.Context, id string, status Status) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.loadLocked(ctx); err != nil {
		return nil, err
	}
	i := b.indexLocked(id)
	if i < 0 {
		return nil, apperrors.NotFound("order", id)
	}

	cur := b.orders[i]
	if cur.Status == status && !status.Terminal() {
		o := cur.clone()
		return &o, nil
	}
	if !cur.Status.CanBecome(status) {
		return nil, apperrors.Conflict(fmt.Sprintf("order %s is %s and cannot become %s", id, cur.Status, status))
	}

	updated := cur.clone()
	updated.Status = status
	updated.Timeline = append(updated.Timeline, StatusChange{Status: status, At: b.now()})

	next := append(make([]Order, 0, len(b.orders)), b.orders...)
	next[i] = updated
	if err := b.saveLocked(ctx, next); err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "seller order status changed",
		slog.String("seller_order_id", id),
		slog.String("from", string(cur.Status)),
		slog.String("to", string(status)),
	)
	updated = updated.clone()
	return &updated, nil
}

func (b *Board) loadLocked(ctx context.Context) error {
	if b.loaded {
		return nil
	}

	data, err := b.kv.Get(ctx, KeyOrders)
	switch {
	case storage.IsNotFound(err):
		b.orders = []Order{}
	case err != nil:
		return apperrors.Unavailable("seller order storage", err)
	default:
		var orders []Order
		if err := json.Unmarshal(data, &orders); err != nil {
			return apperrors.Internal(fmt.Errorf("decode seller orders: %w", err))
		}
		b.orders = orders
	}
	for _, o := range b.orders {
		b.seq = max(b.seq, parseID(o.ID))
	}
	b.loaded = true
	return nil
}

func (b *Board) saveLocked(ctx context.Context, orders []Order) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("encode seller orders: %w", err))
	}
	if err := b.kv.Set(ctx, KeyOrders, data); err != nil {
		return apperrors.Unavailable("seller order storage", err)
	}
	b.orders = orders
	return nil
}

func (b *Board) indexLocked(id string) int {
	for i, o := range b.orders {
		if strings.EqualFold(o.ID, id) {
			return i
		}
	}
	return -1
}

func formatID(n int) string {
	return fmt.Sprintf("%s%0*d", idPrefix, idDigits, n)
}

func parseID(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil {
		return 0
	}
	return n
}
