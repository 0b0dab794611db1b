// Package sqlite is an embedded implementation of storage.Store used for
// local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"deliverus/internal/models"
	"deliverus/internal/storage"
	"deliverus/migrations"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// timeLayout has a fixed width so text comparison orders instants correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite-backed storage.Store.
type Store struct {
	reader
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}

	s := &Store{reader: reader{q: db}, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.VerifySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			migration_name TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	all, err := migrations.Load(migrations.DialectSQLite)
	if err != nil {
		return err
	}

	for _, m := range all {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE migration_name = ?`, m.Name,
		).Scan(&n); err != nil {
			return fmt.Errorf("failed to read applied migrations: %w", err)
		}
		if n > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (migration_name, version, applied_at) VALUES (?, ?, ?)`,
			m.Name, m.Version.String(), formatTime(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// VerifySchema checks that every column the queries reference exists.
func (s *Store) VerifySchema(ctx context.Context) error {
	present := make(map[string]bool)
	for table := range storage.RequiredColumns {
		rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return fmt.Errorf("failed to read schema of %s: %w", table, err)
		}
		for rows.Next() {
			var column string
			if err := rows.Scan(&column); err != nil {
				rows.Close()
				return fmt.Errorf("failed to read schema of %s: %w", table, err)
			}
			present[table+"."+column] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("failed to read schema of %s: %w", table, err)
		}
	}
	return storage.CheckColumns(present)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func timeArg(t time.Time) any { return formatTime(t) }

func question(int) string { return "?" }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

const (
	orderColumns = `o.id, o.restaurant_id, o.customer_id, o.address, o.price_cents, o.shipping_costs_cents,
		o.status, o.created_at, o.updated_at, o.started_at, o.sent_at, o.delivered_at,
		r.owner_id, r.name, r.shipping_costs_cents, r.average_service_minutes`

	orderFrom = `FROM orders o JOIN restaurants r ON r.id = o.restaurant_id`
)

// reader implements storage.Reader over the database or a transaction.
type reader struct {
	q querier
}

func (r reader) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	var (
		rest     models.Restaurant
		shipping int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, shipping_costs_cents, average_service_minutes
		FROM restaurants WHERE id = ?`, id,
	).Scan(&rest.ID, &rest.OwnerID, &rest.Name, &shipping, &rest.AverageServiceMinutes)
	if err != nil {
		return nil, wrap("get restaurant", err)
	}
	rest.ShippingCosts = models.FromCents(shipping)
	return &rest, nil
}

func (r reader) GetProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, restaurant_id, name, price_cents, availability
		FROM products WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id`, int64Args(ids)...)
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
	return products, wrap("iterate products", rows.Err())
}

func (r reader) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` `+orderFrom+` WHERE o.id = ?`, id))
	if err != nil {
		return nil, wrap("get order", err)
	}
	orders := []models.Order{*o}
	if err := r.attachLineItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

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

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unity_price_cents
		FROM order_products WHERE order_id IN (`+placeholders(len(ids))+`)
		ORDER BY order_id, position`, int64Args(ids)...)
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
	return wrap("iterate line items", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		o                        models.Order
		rest                     models.Restaurant
		price, shipping          int64
		restShipping             int64
		status                   string
		created, updated         string
		started, sent, delivered sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.CustomerID, &o.Address, &price, &shipping,
		&status, &created, &updated, &started, &sent, &delivered,
		&rest.OwnerID, &rest.Name, &restShipping, &rest.AverageServiceMinutes,
	)
	if err != nil {
		return nil, err
	}

	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if o.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if o.SentAt, err = parseNullTime(sent); err != nil {
		return nil, err
	}
	if o.DeliveredAt, err = parseNullTime(delivered); err != nil {
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

// BeginTx starts the transaction a workflow operation runs in.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin transaction", err)
	}
	return &Tx{reader: reader{q: tx}, tx: tx}, nil
}

func (s *Store) ListOrders(ctx context.Context, f storage.OrderFilter) ([]models.Order, error) {
	where, args := f.Where(question, timeArg)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` `+orderFrom+` WHERE `+where+` ORDER BY o.created_at DESC, o.id DESC`,
		args...)
	if err != nil {
		return nil, wrap("list orders", err)
	}

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, wrap("scan order", err)
		}
		orders = append(orders, *o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, wrap("iterate orders", err)
	}

	// The single connection must be released before the next query.
	if err := s.attachLineItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) CountOrders(ctx context.Context, f storage.OrderFilter) (int, error) {
	where, args := f.Where(question, timeArg)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, args...).Scan(&n); err != nil {
		return 0, wrap("count orders", err)
	}
	return n, nil
}

func (s *Store) SumOrderPrice(ctx context.Context, f storage.OrderFilter) (decimal.Decimal, error) {
	where, args := f.Where(question, timeArg)
	var cents int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(o.price_cents), 0) FROM orders o WHERE `+where, args...).Scan(&cents); err != nil {
		return decimal.Zero, wrap("sum order price", err)
	}
	return models.FromCents(cents), nil
}

func (s *Store) ListStatusLog(ctx context.Context, orderID int64) ([]models.StatusLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, status, changed_by, changed_at
		FROM order_status_log WHERE order_id = ?
		ORDER BY changed_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, wrap("get status history", err)
	}
	defer rows.Close()

	var entries []models.StatusLogEntry
	for rows.Next() {
		var (
			e          models.StatusLogEntry
			status, at string
		)
		if err := rows.Scan(&e.OrderID, &status, &e.ChangedBy, &at); err != nil {
			return nil, wrap("scan status history", err)
		}
		if e.ChangedAt, err = parseTime(at); err != nil {
			return nil, wrap("parse status history", err)
		}
		e.Status = models.Status(status)
		entries = append(entries, e)
	}
	return entries, wrap("iterate status history", rows.Err())
}

func (s *Store) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO restaurants (owner_id, name, shipping_costs_cents) VALUES (?, ?, ?)`,
		r.OwnerID, r.Name, models.Cents(r.ShippingCosts))
	if err != nil {
		return wrap("insert restaurant", err)
	}
	r.ID, err = res.LastInsertId()
	return wrap("insert restaurant", err)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (restaurant_id, name, price_cents, availability) VALUES (?, ?, ?, ?)`,
		p.RestaurantID, p.Name, models.Cents(p.Price), p.Availability)
	if err != nil {
		return wrap("insert product", err)
	}
	p.ID, err = res.LastInsertId()
	return wrap("insert product", err)
}

// Tx is a database/sql transaction implementing storage.Tx.
type Tx struct {
	reader
	tx *sql.Tx
}

// LockOrder loads the order. SQLite runs one writer at a time, so the
// transaction already excludes concurrent changes.
func (t *Tx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *Tx) InsertOrder(ctx context.Context, o *models.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (restaurant_id, customer_id, address, price_cents, shipping_costs_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RestaurantID, o.CustomerID, o.Address, models.Cents(o.Price), models.Cents(o.ShippingCosts),
		string(o.Status), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return wrap("insert order", err)
	}
	o.ID, err = res.LastInsertId()
	return wrap("insert order", err)
}

func (t *Tx) UpdateOrder(ctx context.Context, o *models.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET address = ?, price_cents = ?, shipping_costs_cents = ?, updated_at = ?
		WHERE id = ?`,
		o.Address, models.Cents(o.Price), models.Cents(o.ShippingCosts), formatTime(o.UpdatedAt), o.ID)
	return affected("update order", res, err, storage.ErrNotFound)
}

func (t *Tx) ReplaceLineItems(ctx context.Context, orderID int64, items []models.LineItem) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_products WHERE order_id = ?`, orderID); err != nil {
		return wrap("delete line items", err)
	}
	for i, li := range items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_products (order_id, product_id, position, name, quantity, unity_price_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			orderID, li.ProductID, i, li.Name, li.Quantity, models.Cents(li.UnityPrice)); err != nil {
			return wrap("insert line item", err)
		}
	}
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, id int64) error {
	for _, q := range []string{
		`DELETE FROM order_products WHERE order_id = ?`,
		`DELETE FROM order_status_log WHERE order_id = ?`,
	} {
		if _, err := t.tx.ExecContext(ctx, q, id); err != nil {
			return wrap("delete order children", err)
		}
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	return affected("delete order", res, err, storage.ErrNotFound)
}

var transitionColumn = map[models.Status]string{
	models.StatusInProcess: "started_at",
	models.StatusSent:      "sent_at",
	models.StatusDelivered: "delivered_at",
}

func (t *Tx) TransitionOrder(ctx context.Context, id int64, from, to models.Status, at time.Time) error {
	column, ok := transitionColumn[to]
	if !ok {
		return fmt.Errorf("no transition into status %q", to)
	}
	ts := formatTime(at)
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, `+column+` = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), ts, ts, id, string(from))
	return affected("transition order", res, err, storage.ErrConflict)
}

func (t *Tx) AppendStatusLog(ctx context.Context, e models.StatusLogEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO order_status_log (order_id, status, changed_by, changed_at) VALUES (?, ?, ?, ?)`,
		e.OrderID, string(e.Status), e.ChangedBy, formatTime(e.ChangedAt))
	return wrap("insert status log", err)
}

func (t *Tx) ListServiceWindows(ctx context.Context, restaurantID int64) ([]models.ServiceWindow, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT created_at, delivered_at FROM orders WHERE restaurant_id = ? AND delivered_at IS NOT NULL`,
		restaurantID)
	if err != nil {
		return nil, wrap("list service windows", err)
	}
	defer rows.Close()

	var windows []models.ServiceWindow
	for rows.Next() {
		var created, delivered string
		if err := rows.Scan(&created, &delivered); err != nil {
			return nil, wrap("scan service window", err)
		}
		var w models.ServiceWindow
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, wrap("parse service window", err)
		}
		if w.DeliveredAt, err = parseTime(delivered); err != nil {
			return nil, wrap("parse service window", err)
		}
		windows = append(windows, w)
	}
	return windows, wrap("iterate service windows", rows.Err())
}

func (t *Tx) SetAverageServiceMinutes(ctx context.Context, restaurantID int64, minutes float64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE restaurants SET average_service_minutes = ? WHERE id = ?`, minutes, restaurantID)
	return wrap("update average service minutes", err)
}

func (t *Tx) Commit(context.Context) error {
	return wrap("commit", t.tx.Commit())
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return wrap("rollback", err)
}

// affected turns a zero-row write into the given sentinel.
func affected(op string, res sql.Result, err error, none error) error {
	if err != nil {
		return wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return none
	}
	return nil
}
