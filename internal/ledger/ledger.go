// Package ledger maintains the guest's live order projection: the
// authoritative local set of order lines, merged from an initial fetch and
// from push events, plus the monetary aggregates derived from it.
//
// The one invariant everything here serves: aggregates are a pure function
// of the current full order set. They are recomputed after every mutation
// and never patched incrementally. A pushed event may be a duplicate, may
// race a concurrent resync, or may describe an order the local view never
// saw; incremental math would compound any such divergence forever, while
// recompute-from-scratch self-heals on the next event or resync.
package ledger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/metrics"
	"github.com/tbourn/go-order-gateway/internal/notify"
)

// OrderSource lists the guest's current orders from the backend. Idempotent
// and re-invocable; the ledger calls it on attach and after every payment
// settlement.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]domain.OrderLine, error)
}

// Ledger is the live order projection for one guest session.
//
// Construct with New, feed it a channel via Attach, and read through
// Snapshot. All mutation happens under one mutex: mutate, then derive,
// never a partially updated view.
type Ledger struct {
	src   OrderSource
	relay notify.Relay
	msgs  *notify.Catalog
	log   zerolog.Logger

	mu     sync.Mutex
	orders map[int64]domain.OrderLine
	seq    []int64 // display order: first-seen
	agg    domain.Aggregate
	sub    *channel.Subscription
}

// New returns an empty ledger. src, relay, and msgs must be non-nil.
func New(src OrderSource, relay notify.Relay, msgs *notify.Catalog, log zerolog.Logger) *Ledger {
	return &Ledger{
		src:    src,
		relay:  relay,
		msgs:   msgs,
		log:    log,
		orders: make(map[int64]domain.OrderLine),
	}
}

// Attach subscribes the ledger to ch and performs the initial fetch. Any
// previous subscription is cancelled first: attaching twice must never
// double-apply events, or every subsequent aggregate silently doubles.
func (l *Ledger) Attach(ctx context.Context, ch *channel.Channel) error {
	l.mu.Lock()
	if l.sub != nil {
		l.sub.Cancel()
		l.sub = nil
	}
	l.mu.Unlock()

	sub := ch.Subscribe(channel.Handlers{
		OnConnect: func() {
			l.log.Debug().Msg("channel connected")
		},
		OnDisconnect: func() {
			// Reconnection is the channel's own responsibility.
			l.log.Debug().Msg("channel disconnected")
		},
		OnOrderUpdated: func(o domain.OrderLine) {
			l.applyOrderUpdated(ctx, o)
		},
		OnPaymentCompleted: func(orders []domain.OrderLine, payer domain.Guest) {
			l.applyPayment(ctx, orders, payer)
		},
	})

	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()

	return l.resync(ctx, "initial")
}

// Detach cancels the ledger's channel subscription, if any.
func (l *Ledger) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		l.sub.Cancel()
		l.sub = nil
	}
}

// Resync re-pulls the full order list and replaces the projection with it.
func (l *Ledger) Resync(ctx context.Context) error {
	return l.resync(ctx, "manual")
}

func (l *Ledger) resync(ctx context.Context, reason string) error {
	orders, err := l.src.ListOrders(ctx)
	if err != nil {
		l.log.Error().Err(err).Str("reason", reason).Msg("order resync failed")
		return err
	}
	metrics.LedgerResyncs.WithLabelValues(reason).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = make(map[int64]domain.OrderLine, len(orders))
	l.seq = l.seq[:0]
	for _, o := range orders {
		if _, dup := l.orders[o.ID]; !dup {
			l.seq = append(l.seq, o.ID)
		}
		l.orders[o.ID] = o
	}
	l.agg = aggregateOf(l.orders)
	return nil
}

// applyOrderUpdated merges one authoritative order state: replace by ID
// (insert if absent), then recompute the aggregate from the full set.
// Duplicates are harmless: the second replace is a no-op and the recompute
// lands on the same result.
func (l *Ledger) applyOrderUpdated(ctx context.Context, o domain.OrderLine) {
	l.mu.Lock()
	if _, known := l.orders[o.ID]; !known {
		l.seq = append(l.seq, o.ID)
	}
	l.orders[o.ID] = o
	l.agg = aggregateOf(l.orders)
	l.mu.Unlock()

	l.log.Info().Int64("order_id", o.ID).Str("status", string(o.Status)).Msg("order updated")
	l.relay.Notify(ctx, l.msgs.OrderUpdated(o))
}

// applyPayment handles a batch settlement: notify once, then re-pull the
// full order list instead of merging the pushed batch. A payment settles N
// orders atomically server-side; trusting the batch to line up with a
// possibly stale local view risks permanent drift, so ground truth is
// re-established wholesale.
func (l *Ledger) applyPayment(ctx context.Context, orders []domain.OrderLine, payer domain.Guest) {
	l.relay.Notify(ctx, l.msgs.PaymentCompleted(payer, len(orders)))
	if err := l.resync(ctx, "payment"); err != nil {
		l.log.Error().Err(err).Msg("post-payment resync failed; projection may be stale until next event")
	}
}

// Snapshot returns the orders in display order plus the current aggregate.
// The slice is a copy; callers may keep it.
func (l *Ledger) Snapshot() ([]domain.OrderLine, domain.Aggregate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.OrderLine, 0, len(l.seq))
	for _, id := range l.seq {
		if o, ok := l.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, l.agg
}

// Aggregate returns the current derived totals.
func (l *Ledger) Aggregate() domain.Aggregate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agg
}

// aggregateOf folds the full order set into the two buckets. Rejected
// orders contribute to neither.
func aggregateOf(orders map[int64]domain.OrderLine) domain.Aggregate {
	var agg domain.Aggregate
	for _, o := range orders {
		switch {
		case o.Status.Outstanding():
			agg.Outstanding.Total += o.Amount()
			agg.Outstanding.Quantity += o.Quantity
		case o.Status.Settled():
			agg.Settled.Total += o.Amount()
			agg.Settled.Quantity += o.Quantity
		}
	}
	return agg
}
