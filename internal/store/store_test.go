package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecobazaar/storefront/internal/domain"
	"github.com/ecobazaar/storefront/internal/storage"
	"github.com/ecobazaar/storefront/internal/storage/memory"
	"github.com/ecobazaar/storefront/pkg/logger"
)

// --- Test Helpers ---

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
}

func openTestStore(t *testing.T, kv storage.KV, opts ...Option) *Store {
	t.Helper()
	s := Open(context.Background(), kv, logger.Discard(), opts...)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func bottle() domain.Product {
	return domain.Product{Name: "Bottle", Price: domain.TextPrice("₹350")}
}

func product(id, name, price string) domain.Product {
	return domain.Product{ID: domain.StringID(id), Name: name, Price: domain.TextPrice(price)}
}

// blockingKV holds every Set until release is closed.
type blockingKV struct {
	*memory.KV
	release chan struct{}
}

func (b *blockingKV) Set(ctx context.Context, key string, value []byte) error {
	<-b.release
	return b.KV.Set(ctx, key, value)
}

// --- AddToCart ---

func TestAddToCart_AppendsNewProduct(t *testing.T) {
	s := openTestStore(t, nil)

	s.AddToCart(context.Background(), product("1", "Bottle", "₹350"))
	s.AddToCart(context.Background(), product("2", "Bag", "₹120"))

	cart := s.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, "Bottle", cart[0].Name)
	assert.Equal(t, "Bag", cart[1].Name)
	assert.Equal(t, 1, cart[0].Qty)
	assert.Equal(t, 1, cart[1].Qty)
}

func TestAddToCart_SameIdentityIncrements(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, product("7", "Bottle", "₹350"))
	s.AddToCart(ctx, product("7", "Bottle", "₹350"))

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 2, cart[0].Qty)
}

func TestAddToCart_NumericAndStringIDMerge(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, domain.Product{ID: domain.NumberID("7"), Name: "Bottle"})
	s.AddToCart(ctx, domain.Product{ID: domain.StringID("7"), Name: "Bottle"})

	require.Len(t, s.Cart(), 1)
}

func TestAddToCart_DifferentIDSameNameStaysSeparate(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, product("1", "Bottle", "₹350"))
	s.AddToCart(ctx, product("2", "Bottle", "₹350"))

	require.Len(t, s.Cart(), 2)
}

func TestAddToCart_BottleScenario(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, bottle())
	s.AddToCart(ctx, bottle())

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, "Bottle", cart[0].Name)
	assert.Equal(t, "₹350", cart[0].Price.String())
	assert.Equal(t, 2, cart[0].Qty)
	assert.Equal(t, "700", s.CalculateTotal(cart).String())
}

func TestAddToCart_MalformedProductIsTolerated(t *testing.T) {
	s := openTestStore(t, nil)

	s.AddToCart(context.Background(), domain.Product{})

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 1, cart[0].Qty)
	assert.True(t, s.CalculateTotal(cart).IsZero())
}

// --- RemoveFromCart / UpdateQuantity ---

func seeded(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t, nil)
	ctx := context.Background()
	s.AddToCart(ctx, product("a", "Bottle", "₹350"))
	s.AddToCart(ctx, product("b", "Bag", "₹120"))
	s.AddToCart(ctx, product("c", "Soap", "₹45"))
	return s
}

func TestRemoveFromCart(t *testing.T) {
	s := seeded(t)

	s.RemoveFromCart(context.Background(), 1)

	cart := s.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, "Bottle", cart[0].Name)
	assert.Equal(t, "Soap", cart[1].Name)
}

func TestRemoveFromCart_OutOfRangeIsNoOp(t *testing.T) {
	for _, pos := range []int{3, 10, -1} {
		s := seeded(t)
		before := s.Snapshot()

		s.RemoveFromCart(context.Background(), pos)

		after := s.Snapshot()
		assert.Equal(t, before.Cart, after.Cart, "position %d", pos)
		assert.Equal(t, before.Version, after.Version, "position %d", pos)
	}
}

func TestUpdateQuantity(t *testing.T) {
	s := seeded(t)

	s.UpdateQuantity(context.Background(), 2, 5)

	cart := s.Cart()
	assert.Equal(t, 5, cart[2].Qty)
	assert.Equal(t, "695", s.CalculateTotal(cart).String())
}

func TestUpdateQuantity_ZeroEqualsRemove(t *testing.T) {
	for i := 0; i < 3; i++ {
		updated := seeded(t)
		removed := seeded(t)

		updated.UpdateQuantity(context.Background(), i, 0)
		removed.RemoveFromCart(context.Background(), i)

		assert.Equal(t, removed.Cart(), updated.Cart(), "index %d", i)
	}
}

func TestUpdateQuantity_NegativeRemoves(t *testing.T) {
	s := seeded(t)

	s.UpdateQuantity(context.Background(), 0, -3)

	cart := s.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, "Bag", cart[0].Name)
}

func TestUpdateQuantity_OutOfRangeIsNoOp(t *testing.T) {
	s := seeded(t)
	before := s.Cart()

	s.UpdateQuantity(context.Background(), 3, 4)
	s.UpdateQuantity(context.Background(), 7, 0)

	assert.Equal(t, before, s.Cart())
}

// --- PlaceOrder ---

func TestPlaceOrder_TwoHundredFiftyScenario(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, domain.Product{Name: "Jute Bag", Price: domain.TextPrice("₹100")})
	s.AddToCart(ctx, domain.Product{Name: "Jute Bag", Price: domain.TextPrice("₹100")})
	s.AddToCart(ctx, domain.Product{Name: "Soap", Price: domain.TextPrice("₹50")})

	order, ok := s.PlaceOrder(ctx)
	require.True(t, ok)
	assert.Equal(t, "250", order.Total.String())
	assert.Empty(t, s.Cart())

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
	assert.Equal(t, "250", orders[0].Total.String())
}

func TestPlaceOrder_EmptyCartIsNoOp(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, ok := s.PlaceOrder(ctx)
	require.True(t, ok)

	_, ok = s.PlaceOrder(ctx)
	assert.False(t, ok)
	assert.Len(t, s.Orders(), 1)
}

func TestPlaceOrder_FreezesItems(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	order, ok := s.PlaceOrder(ctx)
	require.True(t, ok)

	s.AddToCart(ctx, product("a", "Bottle", "₹350"))
	s.UpdateQuantity(ctx, 0, 9)
	order.Items[0].Qty = 42

	stored := s.Orders()[0]
	assert.Len(t, stored.Items, 3)
	assert.Equal(t, 1, stored.Items[0].Qty)
	assert.Equal(t, "515", stored.Total.String())
}

func TestPlaceOrder_IDsStrictlyIncrease(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s := openTestStore(t, nil, WithClock(fixedClock(start)))
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		s.AddToCart(ctx, bottle())
		order, ok := s.PlaceOrder(ctx)
		require.True(t, ok)
		ids = append(ids, order.ID)
		assert.Equal(t, "2024-05-01 09:30:00", order.Date)
	}

	assert.Equal(t, start.UnixMilli(), ids[0])
	assert.Equal(t, ids[0]+1, ids[1])
	assert.Equal(t, ids[1]+1, ids[2])
}

func TestPlaceOrder_IDsContinueAfterHydration(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, storage.KeyOrders, []byte(`[{"id":9000000000000,"date":"x","items":[],"total":0}]`)))

	s := openTestStore(t, kv, WithClock(fixedClock(time.UnixMilli(1_000))))
	s.AddToCart(ctx, bottle())
	order, ok := s.PlaceOrder(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9000000000001), order.ID)
}

func TestPlaceOrder_NotifiesListener(t *testing.T) {
	got := make(chan domain.Order, 1)
	var session string
	listener := OrderListenerFunc(func(_ context.Context, s string, o domain.Order) {
		session = s
		got <- o
	})

	s := openTestStore(t, nil, WithOrderListener(listener), WithSession("s-1"))
	ctx, cancel := context.WithCancel(context.Background())
	s.AddToCart(ctx, bottle())
	order, ok := s.PlaceOrder(ctx)
	require.True(t, ok)
	cancel()

	select {
	case o := <-got:
		assert.Equal(t, order.ID, o.ID)
		assert.Equal(t, "s-1", session)
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestPlaceOrder_NotifiesEveryListener(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(name string) OrderListener {
		return OrderListenerFunc(func(context.Context, string, domain.Order) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
		})
	}

	ctx := context.Background()
	s := Open(ctx, nil, logger.Discard(), WithOrderListener(record("events")), WithOrderListener(record("board")))
	s.AddToCart(ctx, bottle())
	_, ok := s.PlaceOrder(ctx)
	require.True(t, ok)

	// Close waits for listeners.
	require.NoError(t, s.Close(ctx))
	assert.ElementsMatch(t, []string{"events", "board"}, calls)
}

// --- Persistence ---

func TestPersistence_RoundTrip(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()

	first := Open(ctx, kv, logger.Discard())
	first.AddToCart(ctx, product("a", "Bottle", "₹1,250"))
	first.AddToCart(ctx, domain.Product{ID: domain.NumberID("12"), Name: "Mug", Price: domain.NumberPrice(domain.NormalizePrice("80")), Carbon: "0.8 kg CO₂e"})
	first.AddToCart(ctx, product("a", "Bottle", "₹1,250"))
	_, ok := first.PlaceOrder(ctx)
	require.True(t, ok)
	first.AddToCart(ctx, product("b", "Bag", "₹120"))
	require.NoError(t, first.Close(ctx))

	second := openTestStore(t, kv)

	assert.Equal(t, first.Cart(), second.Cart())
	want, got := first.Orders(), second.Orders()
	require.Len(t, got, 1)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, want[0].Date, got[0].Date)
	assert.Equal(t, want[0].Items, got[0].Items)
	assert.Equal(t, want[0].Total.String(), got[0].Total.String())
	assert.Equal(t, "2580", got[0].Total.String())
	assert.Equal(t, first.CalculateTotal(first.Cart()).String(), second.CalculateTotal(second.Cart()).String())
}

func TestPersistence_WritesStorageShape(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	s := openTestStore(t, kv)

	s.AddToCart(ctx, bottle())
	require.NoError(t, s.Flush(ctx))

	data, err := kv.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Bottle","price":"₹350","qty":1}]`, string(data))
}

func TestPersistence_DoesNotBlockCaller(t *testing.T) {
	kv := &blockingKV{KV: memory.New(), release: make(chan struct{})}
	ctx := context.Background()
	s := Open(ctx, kv, logger.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.AddToCart(ctx, bottle())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mutations waited on storage")
	}
	assert.Equal(t, 5, s.Cart()[0].Qty)

	close(kv.release)
	require.NoError(t, s.Close(ctx))

	data, err := kv.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	var cart []domain.LineItem
	require.NoError(t, json.Unmarshal(data, &cart))
	require.Len(t, cart, 1)
	assert.Equal(t, 5, cart[0].Qty)
	assert.LessOrEqual(t, kv.Writes(), 2)
}

func TestPersistence_WriteFailureIsSwallowed(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	s := openTestStore(t, kv)
	kv.SetFailure(nil, errors.New("redis down"))
	before := testutil.ToFloat64(persistFailures.WithLabelValues(storage.KeyCart))

	s.AddToCart(ctx, bottle())
	_ = s.Flush(ctx)

	assert.Len(t, s.Cart(), 1)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(persistFailures.WithLabelValues(storage.KeyCart)) == before+1
	}, time.Second, 10*time.Millisecond)

	kv.SetFailure(nil, nil)
	s.AddToCart(ctx, bottle())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, kv.Writes())
}

func TestPersistence_PlaceOrderWritesBothKeys(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	s := openTestStore(t, kv)

	s.AddToCart(ctx, bottle())
	_, ok := s.PlaceOrder(ctx)
	require.True(t, ok)
	require.NoError(t, s.Flush(ctx))

	cart, err := kv.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(cart))

	orders, err := kv.Get(ctx, storage.KeyOrders)
	require.NoError(t, err)
	var decoded []domain.Order
	require.NoError(t, json.Unmarshal(orders, &decoded))
	assert.Len(t, decoded, 1)
}

func TestFlush_AfterClose(t *testing.T) {
	s := Open(context.Background(), nil, logger.Discard())
	require.NoError(t, s.Close(context.Background()))
	assert.ErrorIs(t, s.Flush(context.Background()), ErrClosed)
	assert.NoError(t, s.Close(context.Background()))

	s.AddToCart(context.Background(), bottle())
	assert.Len(t, s.Cart(), 1)
}

// --- Hydration ---

func TestOpen_Hydration(t *testing.T) {
	tests := []struct {
		name      string
		cart      string
		orders    string
		readErr   error
		wantItems int
		wantQty   int
	}{
		{name: "absent"},
		{name: "malformed", cart: `{"broken`, orders: `not json`},
		{name: "null", cart: `null`, orders: `null`},
		{name: "read failure", cart: `[{"name":"Bottle"}]`, readErr: errors.New("timeout")},
		{name: "stored", cart: `[{"name":"Bottle","price":"₹350","qty":2}]`, orders: `[]`, wantItems: 1, wantQty: 2},
		{name: "older shape", cart: `[{"product_id":3,"name":"Soap","price":45,"quantity":0}]`, wantItems: 1, wantQty: 1},
		{name: "duplicates merged", cart: `[{"name":"Bottle","qty":1},{"name":"Bottle","qty":2}]`, wantItems: 1, wantQty: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := memory.New()
			ctx := context.Background()
			if tt.cart != "" {
				require.NoError(t, kv.Set(ctx, storage.KeyCart, []byte(tt.cart)))
			}
			if tt.orders != "" {
				require.NoError(t, kv.Set(ctx, storage.KeyOrders, []byte(tt.orders)))
			}
			kv.SetFailure(tt.readErr, nil)

			s := openTestStore(t, kv)

			cart := s.Cart()
			require.NotNil(t, cart)
			require.NotNil(t, s.Orders())
			assert.Len(t, cart, tt.wantItems)
			assert.Empty(t, s.Orders())
			if tt.wantItems > 0 {
				assert.Equal(t, tt.wantQty, cart[0].Qty)
			}
		})
	}
}

func TestOpen_DamagedOrderKeepsHistory(t *testing.T) {
	kv := memory.New()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, storage.KeyOrders, []byte(
		`[{"id":1,"date":"x","items":[{"name":"Soap","price":"₹45","qty":1}]},{"id":"abc","date":"y","items":[]}]`,
	)))

	s := openTestStore(t, kv, WithClock(fixedClock(time.UnixMilli(1))))
	orders := s.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Zero(t, orders[1].ID)

	s.AddToCart(ctx, bottle())
	order, ok := s.PlaceOrder(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(2), order.ID)
	require.NoError(t, s.Flush(ctx))

	var stored []domain.Order
	data, err := kv.Get(ctx, storage.KeyOrders)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Len(t, stored, 3)
}

// --- Subscriptions ---

func TestSubscribe_ReceivesCurrentAndLatest(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, uint64(0), initial.Version)
	assert.Empty(t, initial.Cart)

	s.AddToCart(ctx, bottle())
	s.AddToCart(ctx, bottle())
	s.AddToCart(ctx, product("x", "Bag", "₹120"))

	latest := <-ch
	assert.Equal(t, uint64(3), latest.Version)
	assert.Equal(t, 3, latest.ItemCount)
	assert.Equal(t, "820", latest.Total.String())

	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot %d", snap.Version)
	default:
	}
}

func TestSubscribe_SnapshotsOmitOrderHistory(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.AddToCart(ctx, bottle())
	_, ok := s.PlaceOrder(ctx)
	require.True(t, ok)

	ch, cancel := s.Subscribe()
	defer cancel()
	assert.Nil(t, (<-ch).Orders)

	s.AddToCart(ctx, bottle())
	assert.Nil(t, (<-ch).Orders)

	snap := s.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "350", snap.Orders[0].Total.String())
}

func TestSubscribe_CancelIsIdempotent(t *testing.T) {
	s := openTestStore(t, nil)

	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	s.AddToCart(context.Background(), bottle())
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribe_ClosedWithStore(t *testing.T) {
	s := Open(context.Background(), nil, logger.Discard())
	ch, cancel := s.Subscribe()
	<-ch

	require.NoError(t, s.Close(context.Background()))
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

// --- Concurrency ---

func TestConcurrentMutations(t *testing.T) {
	s := openTestStore(t, memory.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddToCart(ctx, bottle())
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	cart := s.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 50, cart[0].Qty)
	assert.Equal(t, uint64(50), s.Snapshot().Version)
}
