package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deliverus/internal/logger"
	"deliverus/internal/models"
	"deliverus/internal/pricing"
	"deliverus/internal/storage"
)

// Publisher delivers lifecycle events after a change has committed.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// Idempotency maps a client Idempotency-Key to the order it created.
type Idempotency interface {
	Lookup(ctx context.Context, customerID int64, key string) (int64, bool, error)
	Remember(ctx context.Context, customerID int64, key string, orderID int64) error
}

// Service runs the order workflow. Every mutation executes in one store
// transaction whose handle is passed explicitly to each persistence call.
//
// Concurrent edits of the same order are serialised by the store's row lock
// and the last committed edit wins. Transitions are compare-and-set on the
// previous status, so racing transitions fail with a StateError.
type Service struct {
	store       storage.Store
	publisher   Publisher
	idempotency Idempotency
	logger      *logger.Logger
	now         func() time.Time
	location    *time.Location
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithIdempotency(i Idempotency) Option {
	return func(s *Service) { s.idempotency = i }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone of date filters.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func NewService(store storage.Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   log,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates, prices and stores a new pending order.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	requestID := logger.RequestIDFromContext(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing := s.replay(ctx, req); existing != nil {
		return existing, nil
	}

	now := s.now()
	var order *models.Order
	err := s.inTx(ctx, "create order", func(tx storage.Tx) error {
		restaurant, err := tx.GetRestaurant(ctx, req.RestaurantID)
		if errors.Is(err, storage.ErrNotFound) {
			return &models.ValidationError{
				Field:   "restaurantId",
				Message: fmt.Sprintf("restaurant %d does not exist", req.RestaurantID),
			}
		}
		if err != nil {
			return err
		}

		items, quote, err := priceLines(ctx, tx, restaurant, req.Products)
		if err != nil {
			return err
		}

		order = &models.Order{
			RestaurantID:  restaurant.ID,
			CustomerID:    req.CustomerID,
			Address:       req.Address,
			Price:         quote.Total,
			ShippingCosts: quote.ShippingCosts,
			Status:        models.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
			Products:      items,
			Restaurant:    restaurant,
		}
		if err := order.Validate(); err != nil {
			return err
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.ReplaceLineItems(ctx, order.ID, items); err != nil {
			return err
		}
		return tx.AppendStatusLog(ctx, models.StatusLogEntry{
			OrderID:   order.ID,
			Status:    models.StatusPending,
			ChangedBy: req.CustomerID,
			ChangedAt: now,
		})
	})
	if err != nil {
		s.logFailure("order_creation_failed", "Failed to create order", requestID, err, map[string]interface{}{
			"restaurant_id": req.RestaurantID,
			"customer_id":   req.CustomerID,
		})
		return nil, err
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Remember(ctx, req.CustomerID, req.IdempotencyKey, order.ID); err != nil {
			s.logger.Error("idempotency_store_failed", "Failed to remember idempotency key", requestID, err, nil)
		}
	}

	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id":       order.ID,
		"restaurant_id":  order.RestaurantID,
		"price":          order.Price.StringFixed(2),
		"shipping_costs": order.ShippingCosts.StringFixed(2),
	})
	s.publish(ctx, models.NewOrderEvent(models.EventOrderCreated, order, "", req.CustomerID, now))

	return order, nil
}

// replay returns the order an earlier request with the same idempotency key
// created, or nil. Cache failures fall through to a normal create.
func (s *Service) replay(ctx context.Context, req *CreateOrderRequest) *models.Order {
	if req.IdempotencyKey == "" || s.idempotency == nil {
		return nil
	}
	requestID := logger.RequestIDFromContext(ctx)

	id, found, err := s.idempotency.Lookup(ctx, req.CustomerID, req.IdempotencyKey)
	if err != nil {
		s.logger.Error("idempotency_lookup_failed", "Failed to look up idempotency key", requestID, err, nil)
		return nil
	}
	if !found {
		return nil
	}

	o, err := s.store.GetOrder(ctx, id)
	if err != nil || o.CustomerID != req.CustomerID {
		return nil
	}
	s.logger.Debug("order_replayed", "Returning order for repeated idempotency key", requestID, map[string]interface{}{
		"order_id": id,
	})
	return o
}

// UpdateOrder replaces the address and line items of a pending order and
// reprices it against its original restaurant.
func (s *Service) UpdateOrder(ctx context.Context, orderID int64, req *UpdateOrderRequest) (*models.Order, error) {
	requestID := logger.RequestIDFromContext(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	var order *models.Order
	err := s.inTx(ctx, "update order", func(tx storage.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != req.CustomerID {
			return &models.AuthorizationError{Resource: "order", ID: orderID}
		}
		if err := o.CheckEditable("edit"); err != nil {
			return err
		}

		restaurant, err := restaurantOf(ctx, tx, o)
		if err != nil {
			return err
		}
		items, quote, err := priceLines(ctx, tx, restaurant, req.Products)
		if err != nil {
			return err
		}

		o.Address = req.Address
		o.Products = items
		o.Price = quote.Total
		o.ShippingCosts = quote.ShippingCosts
		o.UpdatedAt = now
		if err := o.Validate(); err != nil {
			return err
		}

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ReplaceLineItems(ctx, o.ID, items); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		s.logFailure("order_update_failed", "Failed to update order", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}

	s.logger.Info("order_updated", "Order updated", requestID, map[string]interface{}{
		"order_id": order.ID,
		"price":    order.Price.StringFixed(2),
	})
	s.publish(ctx, models.NewOrderEvent(models.EventOrderUpdated, order, order.Status, req.CustomerID, now))

	return order, nil
}

// DeleteOrder removes a pending order and its line items.
func (s *Service) DeleteOrder(ctx context.Context, orderID, customerID int64) error {
	requestID := logger.RequestIDFromContext(ctx)

	var deleted *models.Order
	err := s.inTx(ctx, "delete order", func(tx storage.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.CustomerID != customerID {
			return &models.AuthorizationError{Resource: "order", ID: orderID}
		}
		if err := o.CheckEditable("delete"); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		deleted = o
		return nil
	})
	if err != nil {
		s.logFailure("order_delete_failed", "Failed to delete order", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
		return err
	}

	s.logger.Info("order_deleted", "Order deleted", requestID, map[string]interface{}{
		"order_id": orderID,
	})
	s.publish(ctx, models.NewOrderEvent(models.EventOrderDeleted, deleted, deleted.Status, customerID, s.now()))
	return nil
}

// ConfirmOrder moves a pending order to in process.
func (s *Service) ConfirmOrder(ctx context.Context, orderID, ownerID int64) (*models.Order, error) {
	return s.transition(ctx, orderID, ownerID, models.ActionConfirm)
}

// SendOrder moves an in-process order to sent.
func (s *Service) SendOrder(ctx context.Context, orderID, ownerID int64) (*models.Order, error) {
	return s.transition(ctx, orderID, ownerID, models.ActionSend)
}

// DeliverOrder moves a sent order to delivered and refreshes the
// restaurant's average service time.
func (s *Service) DeliverOrder(ctx context.Context, orderID, ownerID int64) (*models.Order, error) {
	return s.transition(ctx, orderID, ownerID, models.ActionDeliver)
}

func (s *Service) transition(ctx context.Context, orderID, ownerID int64, action models.Action) (*models.Order, error) {
	requestID := logger.RequestIDFromContext(ctx)

	now := s.now()
	var (
		order *models.Order
		from  models.Status
	)
	err := s.inTx(ctx, string(action)+" order", func(tx storage.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		restaurant, err := restaurantOf(ctx, tx, o)
		if err != nil {
			return err
		}
		if restaurant.OwnerID != ownerID {
			return &models.AuthorizationError{Resource: "restaurant", ID: restaurant.ID}
		}

		from = o.Status
		if err := o.Apply(action, now); err != nil {
			return err
		}

		err = tx.TransitionOrder(ctx, o.ID, from, o.Status, now)
		if errors.Is(err, storage.ErrConflict) {
			return &models.StateError{OrderID: o.ID, Status: from, Action: string(action)}
		}
		if err != nil {
			return err
		}

		if err := tx.AppendStatusLog(ctx, models.StatusLogEntry{
			OrderID:   o.ID,
			Status:    o.Status,
			ChangedBy: ownerID,
			ChangedAt: now,
		}); err != nil {
			return err
		}

		if action == models.ActionDeliver {
			if err := refreshServiceTime(ctx, tx, restaurant); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		s.logFailure("order_transition_failed", fmt.Sprintf("Failed to %s order", action), requestID, err, map[string]interface{}{
			"order_id": orderID,
			"action":   string(action),
		})
		return nil, err
	}

	s.logger.Info("order_status_changed", "Order status changed", requestID, map[string]interface{}{
		"order_id":   order.ID,
		"old_status": string(from),
		"new_status": string(order.Status),
	})
	s.publish(ctx, models.NewOrderEvent(models.TransitionEvent(action), order, from, ownerID, now))

	return order, nil
}

// refreshServiceTime stores the mean creation-to-delivery time of the
// restaurant's delivered orders, including the one just delivered.
func refreshServiceTime(ctx context.Context, tx storage.Tx, restaurant *models.Restaurant) error {
	windows, err := tx.ListServiceWindows(ctx, restaurant.ID)
	if err != nil {
		return err
	}
	avg, ok := models.AverageServiceMinutes(windows)
	if !ok {
		return nil
	}
	if err := tx.SetAverageServiceMinutes(ctx, restaurant.ID, avg); err != nil {
		return err
	}
	restaurant.AverageServiceMinutes = &avg
	return nil
}

// GetOrder returns an order visible to its customer or its restaurant's owner.
func (s *Service) GetOrder(ctx context.Context, orderID, callerID int64) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &models.NotFoundError{Resource: "order", ID: orderID}
	}
	if err != nil {
		return nil, models.Persistence("get order", err)
	}

	restaurant, err := restaurantOf(ctx, s.store, o)
	if err != nil {
		return nil, models.Persistence("get order", err)
	}
	if o.CustomerID != callerID && restaurant.OwnerID != callerID {
		return nil, &models.AuthorizationError{Resource: "order", ID: orderID}
	}
	return o, nil
}

// ListFilter narrows order listings. From and To are calendar days; To is
// inclusive through the end of its day.
type ListFilter struct {
	Status models.Status
	From   *time.Time
	To     *time.Time
}

// ParseListFilter parses the status, from and to query parameters. Dates use
// the YYYY-MM-DD layout in the service's time zone.
func (s *Service) ParseListFilter(status, from, to string) (ListFilter, error) {
	var f ListFilter
	if status != "" {
		st, err := models.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	for _, p := range []struct {
		field string
		raw   string
		dst   **time.Time
	}{
		{"from", from, &f.From},
		{"to", to, &f.To},
	} {
		if p.raw == "" {
			continue
		}
		d, err := time.ParseInLocation(models.DateLayout, p.raw, s.location)
		if err != nil {
			return f, &models.ValidationError{Field: p.field, Message: "date must use the YYYY-MM-DD format"}
		}
		*p.dst = &d
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, &models.ValidationError{Field: "to", Message: "to must not be before from"}
	}
	return f, nil
}

func (f ListFilter) apply(sf storage.OrderFilter, loc *time.Location) storage.OrderFilter {
	sf.Status = f.Status
	if f.From != nil {
		sf.CreatedFrom = models.DayStart(*f.From, loc)
	}
	if f.To != nil {
		sf.CreatedBefore = models.DayStart(*f.To, loc).AddDate(0, 0, 1)
	}
	return sf
}

// ListForCustomer returns the caller's orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID int64, f ListFilter) ([]models.Order, error) {
	orders, err := s.store.ListOrders(ctx, f.apply(storage.OrderFilter{CustomerID: customerID}, s.location))
	if err != nil {
		return nil, models.Persistence("list orders", err)
	}
	return orders, nil
}

// ListForRestaurant returns a restaurant's orders for its owner, newest first.
func (s *Service) ListForRestaurant(ctx context.Context, restaurantID, ownerID int64, f ListFilter) ([]models.Order, error) {
	if err := s.checkRestaurantOwner(ctx, restaurantID, ownerID); err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, f.apply(storage.OrderFilter{RestaurantID: restaurantID}, s.location))
	if err != nil {
		return nil, models.Persistence("list orders", err)
	}
	return orders, nil
}

func (s *Service) checkRestaurantOwner(ctx context.Context, restaurantID, ownerID int64) error {
	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.NotFoundError{Resource: "restaurant", ID: restaurantID}
	}
	if err != nil {
		return models.Persistence("get restaurant", err)
	}
	if restaurant.OwnerID != ownerID {
		return &models.AuthorizationError{Resource: "restaurant", ID: restaurantID}
	}
	return nil
}

// HealthCheck reports whether the store answers.
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}

// inTx runs fn in one transaction. Any error rolls everything back and store
// errors come back as opaque PersistenceErrors.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return models.Persistence(op, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Error("rollback_failed", "Failed to roll back transaction", logger.RequestIDFromContext(ctx), err, map[string]interface{}{
				"operation": op,
			})
		}
	}()

	if err := fn(tx); err != nil {
		return models.Persistence(op, err)
	}
	return models.Persistence(op, tx.Commit(ctx))
}

func (s *Service) publish(ctx context.Context, event *models.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish order event", logger.RequestIDFromContext(ctx), err, map[string]interface{}{
			"order_id": event.OrderID,
			"event":    event.Event,
		})
	}
}

// logFailure logs store failures with their hidden cause; business rule
// rejections are expected and only logged at debug level.
func (s *Service) logFailure(action, message, requestID string, err error, fields map[string]interface{}) {
	var pe *models.PersistenceError
	if errors.As(err, &pe) {
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["cause"] = pe.Cause()
		s.logger.Error(action, message, requestID, err, fields)
		return
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["reason"] = err.Error()
	s.logger.Debug(action, message, requestID, fields)
}

func lockOrder(ctx context.Context, tx storage.Tx, orderID int64) (*models.Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &models.NotFoundError{Resource: "order", ID: orderID}
	}
	return o, err
}

func restaurantOf(ctx context.Context, r storage.Reader, o *models.Order) (*models.Restaurant, error) {
	if o.Restaurant != nil && o.Restaurant.ID == o.RestaurantID {
		return o.Restaurant, nil
	}
	restaurant, err := r.GetRestaurant(ctx, o.RestaurantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &models.NotFoundError{Resource: "restaurant", ID: o.RestaurantID}
	}
	if err != nil {
		return nil, err
	}
	o.Restaurant = restaurant
	return restaurant, nil
}

// priceLines resolves the requested products against the restaurant's
// catalog, snapshots their current prices and prices the order.
func priceLines(ctx context.Context, r storage.Reader, restaurant *models.Restaurant, inputs []models.LineItemInput) ([]models.LineItem, pricing.Quote, error) {
	ids := make([]int64, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ProductID
	}

	products, err := r.GetProducts(ctx, ids)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.LineItem, 0, len(inputs))
	lines := make([]pricing.Line, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("products[%d].productId", i)
		p, ok := byID[in.ProductID]
		if !ok {
			return nil, pricing.Quote{}, &models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("product %d does not exist", in.ProductID),
			}
		}
		if p.RestaurantID != restaurant.ID {
			return nil, pricing.Quote{}, &models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("product %d does not belong to restaurant %d", p.ID, restaurant.ID),
			}
		}
		if !p.Availability {
			return nil, pricing.Quote{}, &models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("product %d is not available", p.ID),
			}
		}

		items = append(items, models.LineItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   in.Quantity,
			UnityPrice: p.Price,
		})
		lines = append(lines, pricing.Line{UnitPrice: p.Price, Quantity: in.Quantity})
	}

	return items, pricing.Calculate(restaurant.ShippingCosts, lines), nil
}
