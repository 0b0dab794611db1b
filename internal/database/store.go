package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"deliverus/internal/models"
	"deliverus/internal/storage"
)

var (
	_ storage.Store = (*DB)(nil)
	_ storage.Tx    = (*Tx)(nil)
)

// wrap annotates a driver error with the operation and SQLSTATE.
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (sqlstate %s): %w", op, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func timeArg(t time.Time) any { return t }

// reader implements storage.Reader over the pool or a transaction.
type reader struct {
	q querier
}

func (r reader) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	var (
		rest     models.Restaurant
		shipping int64
	)
	err := r.q.QueryRow(ctx, GetRestaurantSQL, id).Scan(
		&rest.ID, &rest.OwnerID, &rest.Name, &shipping, &rest.AverageServiceMinutes,
	)
	if err != nil {
		return nil, wrap("get restaurant", err)
	}
	rest.ShippingCosts = models.FromCents(shipping)
	return &rest, nil
}

func (r reader) GetProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	rows, err := r.q.Query(ctx, GetProductsSQL, ids)
	if err != nil {
		return nil, wrap("get products", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var (
			p     models.Product
			price int64
		)
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.Name, &price, &p.Availability); err != nil {
			return nil, wrap("scan product", err)
		}
		p.Price = models.FromCents(price)
		products = append(products, p)
	}
	return products, wrap0("iterate products", rows.Err())
}

func (r reader) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.loadOrder(ctx, GetOrderSQL, id)
}

func (r reader) loadOrder(ctx context.Context, sql string, id int64) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, wrap("get order", err)
	}
	orders := []models.Order{*o}
	if err := r.attachLineItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachLineItems loads the line items of all orders in one query.
func (r reader) attachLineItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, GetLineItemsSQL, ids)
	if err != nil {
		return wrap("get line items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			li      models.LineItem
			price   int64
		)
		if err := rows.Scan(&orderID, &li.ProductID, &li.Name, &li.Quantity, &price); err != nil {
			return wrap("scan line item", err)
		}
		li.UnityPrice = models.FromCents(price)
		i := index[orderID]
		orders[i].Products = append(orders[i].Products, li)
	}
	return wrap0("iterate line items", rows.Err())
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o               models.Order
		rest            models.Restaurant
		price, shipping int64
		restShipping    int64
		status          string
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.CustomerID, &o.Address, &price, &shipping,
		&status, &o.CreatedAt, &o.UpdatedAt, &o.StartedAt, &o.SentAt, &o.DeliveredAt,
		&rest.OwnerID, &rest.Name, &restShipping, &rest.AverageServiceMinutes,
	)
	if err != nil {
		return nil, err
	}
	o.Price = models.FromCents(price)
	o.ShippingCosts = models.FromCents(shipping)
	o.Status = models.Status(status)
	rest.ID = o.RestaurantID
	rest.ShippingCosts = models.FromCents(restShipping)
	o.Restaurant = &rest
	return &o, nil
}

func wrap0(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(op, err)
}

// BeginTx starts the transaction a workflow operation runs in.
func (db *DB) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	return &Tx{reader: reader{q: tx}, tx: tx}, nil
}

func (db *DB) ListOrders(ctx context.Context, f storage.OrderFilter) ([]models.Order, error) {
	where, args := f.Where(dollar, timeArg)
	sql := `SELECT ` + orderColumns + ` ` + orderFrom + ` WHERE ` + where + ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap("list orders", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, wrap("scan order", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate orders", err)
	}

	if err := db.attachLineItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (db *DB) CountOrders(ctx context.Context, f storage.OrderFilter) (int, error) {
	where, args := f.Where(dollar, timeArg)
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, args...).Scan(&n); err != nil {
		return 0, wrap("count orders", err)
	}
	return n, nil
}

func (db *DB) SumOrderPrice(ctx context.Context, f storage.OrderFilter) (decimal.Decimal, error) {
	where, args := f.Where(dollar, timeArg)
	var cents int64
	sql := `SELECT COALESCE(SUM(o.price_cents), 0)::BIGINT FROM orders o WHERE ` + where
	if err := db.Pool.QueryRow(ctx, sql, args...).Scan(&cents); err != nil {
		return decimal.Zero, wrap("sum order price", err)
	}
	return models.FromCents(cents), nil
}

func (db *DB) ListStatusLog(ctx context.Context, orderID int64) ([]models.StatusLogEntry, error) {
	rows, err := db.Pool.Query(ctx, GetOrderStatusHistorySQL, orderID)
	if err != nil {
		return nil, wrap("get status history", err)
	}
	defer rows.Close()

	var entries []models.StatusLogEntry
	for rows.Next() {
		var (
			e      models.StatusLogEntry
			status string
		)
		if err := rows.Scan(&e.OrderID, &status, &e.ChangedBy, &e.ChangedAt); err != nil {
			return nil, wrap("scan status history", err)
		}
		e.Status = models.Status(status)
		entries = append(entries, e)
	}
	return entries, wrap0("iterate status history", rows.Err())
}

func (db *DB) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	err := db.Pool.QueryRow(ctx, InsertRestaurantSQL, r.OwnerID, r.Name, models.Cents(r.ShippingCosts)).Scan(&r.ID)
	return wrap0("insert restaurant", err)
}

func (db *DB) CreateProduct(ctx context.Context, p *models.Product) error {
	err := db.Pool.QueryRow(ctx, InsertProductSQL, p.RestaurantID, p.Name, models.Cents(p.Price), p.Availability).Scan(&p.ID)
	return wrap0("insert product", err)
}

// Tx is a pgx transaction implementing storage.Tx.
type Tx struct {
	reader
	tx pgx.Tx
}

func (t *Tx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.loadOrder(ctx, LockOrderSQL, id)
}

func (t *Tx) InsertOrder(ctx context.Context, o *models.Order) error {
	err := t.tx.QueryRow(ctx, InsertOrderSQL,
		o.RestaurantID, o.CustomerID, o.Address, models.Cents(o.Price), models.Cents(o.ShippingCosts),
		string(o.Status), o.CreatedAt,
	).Scan(&o.ID)
	return wrap0("insert order", err)
}

func (t *Tx) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := t.tx.Exec(ctx, UpdateOrderSQL,
		o.ID, o.Address, models.Cents(o.Price), models.Cents(o.ShippingCosts), o.UpdatedAt,
	)
	if err != nil {
		return wrap("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *Tx) ReplaceLineItems(ctx context.Context, orderID int64, items []models.LineItem) error {
	if _, err := t.tx.Exec(ctx, DeleteLineItemsSQL, orderID); err != nil {
		return wrap("delete line items", err)
	}

	batch := &pgx.Batch{}
	for i, li := range items {
		batch.Queue(InsertLineItemSQL, orderID, li.ProductID, i, li.Name, li.Quantity, models.Cents(li.UnityPrice))
	}
	br := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return wrap("insert line item", err)
		}
	}
	return wrap0("insert line items", br.Close())
}

func (t *Tx) DeleteOrder(ctx context.Context, id int64) error {
	for _, sql := range []string{DeleteLineItemsSQL, DeleteStatusLogSQL} {
		if _, err := t.tx.Exec(ctx, sql, id); err != nil {
			return wrap("delete order children", err)
		}
	}
	tag, err := t.tx.Exec(ctx, DeleteOrderSQL, id)
	if err != nil {
		return wrap("delete order", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *Tx) TransitionOrder(ctx context.Context, id int64, from, to models.Status, at time.Time) error {
	var sql string
	switch to {
	case models.StatusInProcess:
		sql = ConfirmOrderSQL
	case models.StatusSent:
		sql = SendOrderSQL
	case models.StatusDelivered:
		sql = DeliverOrderSQL
	default:
		return fmt.Errorf("no transition into status %q", to)
	}

	tag, err := t.tx.Exec(ctx, sql, id, string(to), at, string(from))
	if err != nil {
		return wrap("transition order", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (t *Tx) AppendStatusLog(ctx context.Context, e models.StatusLogEntry) error {
	_, err := t.tx.Exec(ctx, InsertOrderStatusLogSQL, e.OrderID, string(e.Status), e.ChangedBy, e.ChangedAt)
	return wrap0("insert status log", err)
}

func (t *Tx) ListServiceWindows(ctx context.Context, restaurantID int64) ([]models.ServiceWindow, error) {
	rows, err := t.tx.Query(ctx, ListServiceWindowsSQL, restaurantID)
	if err != nil {
		return nil, wrap("list service windows", err)
	}
	defer rows.Close()

	var windows []models.ServiceWindow
	for rows.Next() {
		var w models.ServiceWindow
		if err := rows.Scan(&w.CreatedAt, &w.DeliveredAt); err != nil {
			return nil, wrap("scan service window", err)
		}
		windows = append(windows, w)
	}
	return windows, wrap0("iterate service windows", rows.Err())
}

func (t *Tx) SetAverageServiceMinutes(ctx context.Context, restaurantID int64, minutes float64) error {
	_, err := t.tx.Exec(ctx, UpdateAverageServiceMinutesSQL, restaurantID, minutes)
	return wrap0("update average service minutes", err)
}

func (t *Tx) Commit(ctx context.Context) error {
	return wrap0("commit", t.tx.Commit(ctx))
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return wrap0("rollback", err)
}
