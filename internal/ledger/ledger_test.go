package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/notify"
)

// fakeSource serves a mutable order list and counts calls.
type fakeSource struct {
	mu     sync.Mutex
	orders []domain.OrderLine
	calls  int
	err    error
}

func (s *fakeSource) ListOrders(ctx context.Context) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.OrderLine, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeRelay records every message it is handed.
type fakeRelay struct {
	mu       sync.Mutex
	messages []string
}

func (r *fakeRelay) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func order(id int64, status domain.OrderStatus, qty int, price int64) domain.OrderLine {
	return domain.OrderLine{
		ID:           id,
		DishSnapshot: domain.DishSnapshot{ID: id, Name: "dish", Price: price},
		Quantity:     qty,
		Status:       status,
	}
}

func newLedger(src OrderSource) (*Ledger, *fakeRelay) {
	relay := &fakeRelay{}
	return New(src, relay, notify.NewCatalog("vi"), zerolog.Nop()), relay
}

func TestAggregate_SpecFixture(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderPending, 2, 10),
		order(2, domain.OrderPaid, 1, 50),
		order(3, domain.OrderRejected, 5, 1),
	}}
	l, _ := newLedger(src)
	if err := l.Resync(context.Background()); err != nil {
		t.Fatalf("Resync: %v", err)
	}

	agg := l.Aggregate()
	want := domain.Aggregate{
		Outstanding: domain.Bucket{Total: 20, Quantity: 2},
		Settled:     domain.Bucket{Total: 50, Quantity: 1},
	}
	if agg != want {
		t.Fatalf("aggregate = %+v, want %+v", agg, want)
	}
}

func TestOrderUpdated_MergeAndRecompute(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderPending, 2, 10),
	}}
	l, relay := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// Status change on a known order.
	ch.Publish(channel.Event{Type: channel.EventOrderUpdated, Order: ptr(order(1, domain.OrderPaid, 2, 10))})
	agg := l.Aggregate()
	if agg.Settled.Total != 20 || agg.Outstanding.Quantity != 0 {
		t.Fatalf("after settle: %+v", agg)
	}

	// Insert-if-absent on an unknown order.
	ch.Publish(channel.Event{Type: channel.EventOrderUpdated, Order: ptr(order(9, domain.OrderPending, 1, 7))})
	orders, agg := l.Snapshot()
	if len(orders) != 2 {
		t.Fatalf("len(orders) = %d, want 2", len(orders))
	}
	if agg.Outstanding.Total != 7 {
		t.Fatalf("outstanding total = %d, want 7", agg.Outstanding.Total)
	}

	if relay.count() != 2 {
		t.Fatalf("notify count = %d, want 2", relay.count())
	}
}

func TestOrderUpdated_DuplicateIsIdempotent(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderPending, 2, 10),
	}}
	l, _ := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ev := channel.Event{Type: channel.EventOrderUpdated, Order: ptr(order(1, domain.OrderDelivered, 2, 10))}
	ch.Publish(ev)
	once, aggOnce := l.Snapshot()
	ch.Publish(ev)
	twice, aggTwice := l.Snapshot()

	if aggOnce != aggTwice {
		t.Fatalf("aggregate changed on duplicate: %+v vs %+v", aggOnce, aggTwice)
	}
	if len(once) != len(twice) {
		t.Fatalf("order count changed on duplicate: %d vs %d", len(once), len(twice))
	}
}

func TestAttach_TwiceAppliesEventsOnce(t *testing.T) {
	src := &fakeSource{}
	l, _ := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("second Attach: %v", err)
	}

	ch.Publish(channel.Event{Type: channel.EventOrderUpdated, Order: ptr(order(1, domain.OrderPending, 3, 5))})
	agg := l.Aggregate()
	if agg.Outstanding.Quantity != 3 || agg.Outstanding.Total != 15 {
		t.Fatalf("event applied more than once: %+v", agg)
	}
}

func TestPayment_NotifiesOnceAndResyncsOnce(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderDelivered, 1, 100),
	}}
	l, relay := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	fetchesBefore := src.callCount()

	// Server settles the batch; the pushed payload is deliberately NOT
	// merged, the ledger re-pulls instead.
	src.mu.Lock()
	src.orders = []domain.OrderLine{order(1, domain.OrderPaid, 1, 100)}
	src.mu.Unlock()

	payer := domain.Guest{Name: "Lan", TableNumber: 4}
	ch.Publish(channel.Event{
		Type:   channel.EventPaymentCompleted,
		Orders: []domain.OrderLine{order(1, domain.OrderPaid, 1, 100)},
		Payer:  &payer,
	})

	if got := src.callCount() - fetchesBefore; got != 1 {
		t.Fatalf("resync count = %d, want 1", got)
	}
	if relay.count() != 1 {
		t.Fatalf("notify count = %d, want 1", relay.count())
	}
	agg := l.Aggregate()
	if agg.Settled.Total != 100 || agg.Outstanding.Quantity != 0 {
		t.Fatalf("post-payment aggregate: %+v", agg)
	}
}

func TestPayment_EmptyBatchStillResyncs(t *testing.T) {
	src := &fakeSource{}
	l, relay := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	before := src.callCount()

	ch.Publish(channel.Event{Type: channel.EventPaymentCompleted})

	if got := src.callCount() - before; got != 1 {
		t.Fatalf("resync count = %d, want 1", got)
	}
	if relay.count() != 1 {
		t.Fatalf("notify count = %d, want 1", relay.count())
	}
}

func TestResync_ReplacesWholeSet(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderPending, 1, 10),
		order(2, domain.OrderPending, 1, 20),
	}}
	l, _ := newLedger(src)
	if err := l.Resync(context.Background()); err != nil {
		t.Fatalf("Resync: %v", err)
	}

	// Order 2 vanished server-side; a resync must drop it locally too.
	src.mu.Lock()
	src.orders = []domain.OrderLine{order(1, domain.OrderPending, 1, 10)}
	src.mu.Unlock()
	if err := l.Resync(context.Background()); err != nil {
		t.Fatalf("Resync: %v", err)
	}

	orders, agg := l.Snapshot()
	if len(orders) != 1 || orders[0].ID != 1 {
		t.Fatalf("orders = %+v, want just order 1", orders)
	}
	if agg.Outstanding.Total != 10 {
		t.Fatalf("outstanding total = %d, want 10", agg.Outstanding.Total)
	}
}

func TestLifecycleEvents_DoNotMutate(t *testing.T) {
	src := &fakeSource{orders: []domain.OrderLine{
		order(1, domain.OrderPending, 1, 10),
	}}
	l, relay := newLedger(src)
	ch := channel.New(zerolog.Nop())
	if err := l.Attach(context.Background(), ch); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	before := l.Aggregate()

	ch.Publish(channel.Event{Type: channel.EventConnect})
	ch.Publish(channel.Event{Type: channel.EventDisconnect})

	if got := l.Aggregate(); got != before {
		t.Fatalf("lifecycle events mutated aggregate: %+v -> %+v", before, got)
	}
	if relay.count() != 0 {
		t.Fatalf("lifecycle events notified: %d messages", relay.count())
	}
}

func ptr(o domain.OrderLine) *domain.OrderLine { return &o }
