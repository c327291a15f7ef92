// Package domain defines the core types of the order gateway: the guest's
// order lines as pushed by the restaurant backend, the status taxonomy used
// for monetary aggregation, and the role claim carried inside access tokens.
// These types are shared across the ledger, bootstrap, and transport layers.
package domain

// OrderStatus is the closed set of states an order moves through.
// The split between outstanding and settled drives the ledger aggregates:
// Pending/Processing/Delivered count as unpaid, Paid as settled, and
// Rejected contributes to neither sum.
type OrderStatus string

// Order status values, as emitted by the restaurant backend.
const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderDelivered  OrderStatus = "Delivered"
	OrderPaid       OrderStatus = "Paid"
	OrderRejected   OrderStatus = "Rejected"
)

// Outstanding reports whether the order still awaits payment.
func (s OrderStatus) Outstanding() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderDelivered:
		return true
	}
	return false
}

// Settled reports whether the order has been paid.
func (s OrderStatus) Settled() bool { return s == OrderPaid }

// Valid reports whether s is a member of the closed status set.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderDelivered, OrderPaid, OrderRejected:
		return true
	}
	return false
}

// DishSnapshot is the dish as it was at order time. The backend freezes
// name, price, and image into the order so later menu edits never change
// what the guest actually bought.
type DishSnapshot struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

// Guest identifies who placed an order and at which table. Present on
// payment events so the notification can name the payer.
type Guest struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TableNumber int    `json:"tableNumber"`
}

// OrderLine is a single order of one dish, in a given quantity, at a given
// status. It is the unit the backend pushes over the event channel and the
// unit the ledger keys by ID.
type OrderLine struct {
	ID           int64        `json:"id"`
	DishSnapshot DishSnapshot `json:"dishSnapshot"`
	Quantity     int          `json:"quantity"`
	Status       OrderStatus  `json:"status"`
	Guest        *Guest       `json:"guest,omitempty"`
}

// Amount returns the monetary contribution of this line: unit price times
// quantity.
func (o OrderLine) Amount() int64 { return o.DishSnapshot.Price * int64(o.Quantity) }

// Bucket is one side of the aggregate: a money total and an item count.
type Bucket struct {
	Total    int64 `json:"total"`
	Quantity int   `json:"quantity"`
}

// Aggregate is the derived monetary view over a full order set. It is always
// recomputed from scratch, never patched incrementally, so a duplicated or
// stale push event can never skew it permanently.
type Aggregate struct {
	Outstanding Bucket `json:"outstanding"`
	Settled     Bucket `json:"settled"`
}

// RoleClaim is the role embedded in an access token. It is decoded without
// signature verification and must only ever steer display routing; see the
// token package for the full caveat.
type RoleClaim string

// Known roles issued by the authentication service.
const (
	RoleGuest    RoleClaim = "Guest"
	RoleEmployee RoleClaim = "Employee"
	RoleOwner    RoleClaim = "Owner"
)

// Valid reports whether r is a member of the closed role set.
func (r RoleClaim) Valid() bool {
	switch r {
	case RoleGuest, RoleEmployee, RoleOwner:
		return true
	}
	return false
}
