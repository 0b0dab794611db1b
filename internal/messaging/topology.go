package messaging

// Broker topology for order lifecycle events.
const (
	OrdersExchange        = "orders_topic"
	NotificationsExchange = "notifications_fanout"

	OrderEventsQueue   = "order_events_queue"
	NotificationsQueue = "notifications_queue"

	// OrderEventsBinding matches every order.<event> routing key.
	OrderEventsBinding = "order.#"
)
