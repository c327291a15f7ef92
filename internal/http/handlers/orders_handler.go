// Order projection handlers.
//
// This file exposes read endpoints over the live order ledger:
//   - GET  /api/v1/orders        (snapshot plus derived totals)
//   - POST /api/v1/orders/resync (force a full refetch)
//
// Handlers never compute totals themselves; the aggregate arrives from the
// ledger, which always derives it from the complete order set.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

//
// DTOs
//

// BucketResponse is one side of the aggregate split.
type BucketResponse struct {
	// Total is the summed price*quantity in minor currency units.
	Total int64 `json:"total"`
	// Quantity is the summed item count.
	Quantity int `json:"quantity"`
}

// AggregateResponse carries the derived totals of the current order set.
type AggregateResponse struct {
	// Outstanding covers orders still owed (pending, processing, delivered).
	Outstanding BucketResponse `json:"outstanding"`
	// Settled covers paid orders.
	Settled BucketResponse `json:"settled"`
}

// OrdersResponse is the payload for GET /api/v1/orders.
type OrdersResponse struct {
	Orders    []domain.OrderLine `json:"orders"`
	Aggregate AggregateResponse  `json:"aggregate"`
}

// SessionResponse is the payload for GET /api/v1/session.
type SessionResponse struct {
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Orders handles GET /api/v1/orders. The order list preserves first-seen
// order; an empty session yields an empty list and zeroed totals, not an
// error.
func (h *Handlers) Orders(c *gin.Context) {
	orders, agg := h.book.Snapshot()
	if orders == nil {
		orders = []domain.OrderLine{}
	}
	ok(c, http.StatusOK, OrdersResponse{
		Orders:    orders,
		Aggregate: toAggregateResponse(agg),
	})
}

// ResyncOrders handles POST /api/v1/orders/resync. It forces a full refetch
// from the source of truth and returns the fresh snapshot.
func (h *Handlers) ResyncOrders(c *gin.Context) {
	if err := h.book.Resync(c.Request.Context()); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeResyncFailed, "order resync failed")
		return
	}
	h.Orders(c)
}

func toAggregateResponse(agg domain.Aggregate) AggregateResponse {
	return AggregateResponse{
		Outstanding: BucketResponse{Total: agg.Outstanding.Total, Quantity: agg.Outstanding.Quantity},
		Settled:     BucketResponse{Total: agg.Settled.Total, Quantity: agg.Settled.Quantity},
	}
}
