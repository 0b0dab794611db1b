package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Order lifecycle events published to the broker.
const (
	EventOrderCreated   = "created"
	EventOrderUpdated   = "updated"
	EventOrderDeleted   = "deleted"
	EventOrderConfirmed = "confirmed"
	EventOrderSent      = "sent"
	EventOrderDelivered = "delivered"
)

// OrderEvent is the notification emitted after an order change commits.
type OrderEvent struct {
	Event        string      `json:"event"`
	OrderID      int64       `json:"order_id"`
	RestaurantID int64       `json:"restaurant_id"`
	CustomerID   int64       `json:"customer_id"`
	OldStatus    Status      `json:"old_status,omitempty"`
	NewStatus    Status      `json:"new_status,omitempty"`
	Price        json.Number `json:"price"`
	ChangedBy    int64       `json:"changed_by"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewOrderEvent builds an event for the order as it stands after the change.
func NewOrderEvent(event string, o *Order, oldStatus Status, changedBy int64, at time.Time) *OrderEvent {
	return &OrderEvent{
		Event:        event,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		CustomerID:   o.CustomerID,
		OldStatus:    oldStatus,
		NewStatus:    o.Status,
		Price:        MoneyJSON(o.Price),
		ChangedBy:    changedBy,
		Timestamp:    at.UTC(),
	}
}

// TransitionEvent maps a lifecycle action to its event name.
func TransitionEvent(a Action) string {
	switch a {
	case ActionConfirm:
		return EventOrderConfirmed
	case ActionSend:
		return EventOrderSent
	case ActionDeliver:
		return EventOrderDelivered
	}
	return string(a)
}

// RoutingKey is the topic routing key for an event.
func (e *OrderEvent) RoutingKey() string {
	return fmt.Sprintf("order.%s", e.Event)
}
