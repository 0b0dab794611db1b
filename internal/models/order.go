package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Restaurant is the part of the restaurant record the order workflow reads.
type Restaurant struct {
	ID                    int64
	OwnerID               int64
	Name                  string
	ShippingCosts         decimal.Decimal
	AverageServiceMinutes *float64
}

// Product is a catalog entry that can be ordered.
type Product struct {
	ID           int64
	RestaurantID int64
	Name         string
	Price        decimal.Decimal
	Availability bool
}

// LineItem is one product line of an order with its price snapshot.
type LineItem struct {
	ProductID  int64
	Name       string
	Quantity   int
	UnityPrice decimal.Decimal
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnityPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// LineItemInput is a requested (product, quantity) pair before pricing.
type LineItemInput struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Order is the order aggregate: header fields plus its owned line items.
type Order struct {
	ID            int64
	RestaurantID  int64
	CustomerID    int64
	Address       string
	Price         decimal.Decimal
	ShippingCosts decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	SentAt        *time.Time
	DeliveredAt   *time.Time
	Products      []LineItem

	// Restaurant is populated on reads for display only.
	Restaurant *Restaurant
}

// Editable reports whether the customer may still change or delete the order.
func (o *Order) Editable() bool {
	return o.Status == StatusPending
}

// CheckEditable returns a StateError when the order is past pending.
func (o *Order) CheckEditable(action string) error {
	if !o.Editable() {
		return &StateError{OrderID: o.ID, Status: o.Status, Action: action}
	}
	return nil
}

// Apply performs a lifecycle transition at the given instant.
func (o *Order) Apply(action Action, now time.Time) error {
	from, to, ok := Transition(action)
	if !ok {
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
	}
	if o.Status != from {
		return &StateError{OrderID: o.ID, Status: o.Status, Action: string(action)}
	}

	at := now
	switch to {
	case StatusInProcess:
		o.StartedAt = &at
	case StatusSent:
		o.SentAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// TransitionTime returns the timestamp that reaching status s sets.
func (o *Order) TransitionTime(s Status) *time.Time {
	switch s {
	case StatusInProcess:
		return o.StartedAt
	case StatusSent:
		return o.SentAt
	case StatusDelivered:
		return o.DeliveredAt
	}
	return &o.CreatedAt
}

// Validate checks the header invariants that must hold before any write.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.Address) == "" {
		return &ValidationError{Field: "address", Message: "address is required"}
	}
	if len(o.Products) == 0 {
		return &ValidationError{Field: "products", Message: "an order needs at least one product"}
	}
	if o.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "price must not be negative"}
	}
	if o.ShippingCosts.IsNegative() {
		return &ValidationError{Field: "shippingCosts", Message: "shipping costs must not be negative"}
	}

	total := o.ShippingCosts
	for i, li := range o.Products {
		if li.Quantity < 1 {
			return &ValidationError{Field: fmt.Sprintf("products[%d].quantity", i), Message: "quantity must be at least 1"}
		}
		total = total.Add(li.Subtotal())
	}
	if !InCentsRange(o.Price) {
		return &ValidationError{Field: "price", Message: "price exceeds the largest storable amount"}
	}
	if !total.Equal(o.Price) {
		return &ValidationError{Field: "price", Message: fmt.Sprintf("price %s does not match line items %s", o.Price.StringFixed(2), total.StringFixed(2))}
	}

	status, err := StatusFromTimestamps(o.StartedAt, o.SentAt, o.DeliveredAt)
	if err != nil {
		return &ValidationError{Field: "status", Message: err.Error()}
	}
	if status != o.Status {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("status %q does not match timestamps (%q)", o.Status, status)}
	}
	if o.StartedAt != nil && o.StartedAt.Before(o.CreatedAt) {
		return &ValidationError{Field: "startedAt", Message: "startedAt precedes createdAt"}
	}
	return nil
}

// StatusLogEntry is one row of the order status history.
type StatusLogEntry struct {
	OrderID   int64     `json:"orderId"`
	Status    Status    `json:"status"`
	ChangedBy int64     `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}

// ServiceWindow is the creation and delivery instant of a delivered order.
type ServiceWindow struct {
	CreatedAt   time.Time
	DeliveredAt time.Time
}

// AverageServiceMinutes returns the mean creation-to-delivery time in minutes.
func AverageServiceMinutes(windows []ServiceWindow) (float64, bool) {
	if len(windows) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, w := range windows {
		total += w.DeliveredAt.Sub(w.CreatedAt)
	}
	return total.Minutes() / float64(len(windows)), true
}

// RestaurantAnalytics holds the per-restaurant counters.
type RestaurantAnalytics struct {
	RestaurantID            int64
	NumYesterdayOrders      int
	NumPendingOrders        int
	NumDeliveredTodayOrders int
	InvoicedToday           decimal.Decimal
}
