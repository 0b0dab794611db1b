package database

// Column lists shared by the order queries. Reads always join the restaurant
// so the aggregate carries its restaurant summary.
const (
	orderColumns = `o.id, o.restaurant_id, o.customer_id, o.address, o.price_cents, o.shipping_costs_cents,
		o.status, o.created_at, o.updated_at, o.started_at, o.sent_at, o.delivered_at,
		r.owner_id, r.name, r.shipping_costs_cents, r.average_service_minutes`

	orderFrom = `FROM orders o JOIN restaurants r ON r.id = o.restaurant_id`
)

// Restaurant and product queries
const (
	GetRestaurantSQL = `
		SELECT id, owner_id, name, shipping_costs_cents, average_service_minutes
		FROM restaurants WHERE id = $1`

	GetProductsSQL = `
		SELECT id, restaurant_id, name, price_cents, availability
		FROM products WHERE id = ANY($1)
		ORDER BY id`

	InsertRestaurantSQL = `
		INSERT INTO restaurants (owner_id, name, shipping_costs_cents)
		VALUES ($1, $2, $3)
		RETURNING id`

	InsertProductSQL = `
		INSERT INTO products (restaurant_id, name, price_cents, availability)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	ListServiceWindowsSQL = `
		SELECT created_at, delivered_at FROM orders
		WHERE restaurant_id = $1 AND delivered_at IS NOT NULL`

	UpdateAverageServiceMinutesSQL = `
		UPDATE restaurants SET average_service_minutes = $2 WHERE id = $1`
)

// Order queries
const (
	GetOrderSQL = `SELECT ` + orderColumns + ` ` + orderFrom + ` WHERE o.id = $1`

	LockOrderSQL = GetOrderSQL + ` FOR UPDATE OF o`

	InsertOrderSQL = `
		INSERT INTO orders (restaurant_id, customer_id, address, price_cents, shipping_costs_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`

	UpdateOrderSQL = `
		UPDATE orders SET address = $2, price_cents = $3, shipping_costs_cents = $4, updated_at = $5
		WHERE id = $1`

	DeleteLineItemsSQL = `DELETE FROM order_products WHERE order_id = $1`

	InsertLineItemSQL = `
		INSERT INTO order_products (order_id, product_id, position, name, quantity, unity_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6)`

	GetLineItemsSQL = `
		SELECT order_id, product_id, name, quantity, unity_price_cents
		FROM order_products WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	DeleteStatusLogSQL = `DELETE FROM order_status_log WHERE order_id = $1`

	DeleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	ConfirmOrderSQL = `
		UPDATE orders SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`

	SendOrderSQL = `
		UPDATE orders SET status = $2, sent_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`

	DeliverOrderSQL = `
		UPDATE orders SET status = $2, delivered_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4)`

	GetOrderStatusHistorySQL = `
		SELECT order_id, status, changed_by, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`
)

// Schema queries
const (
	GetSchemaColumnsSQL = `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()`
)
