// Package analytics computes the per-restaurant order counters shown on the
// owner dashboard.
package analytics

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"deliverus/internal/logger"
	"deliverus/internal/models"
	"deliverus/internal/storage"
)

type Service struct {
	store    storage.Store
	logger   *logger.Logger
	now      func() time.Time
	location *time.Location
}

func NewService(store storage.Store, log *logger.Logger, loc *time.Location, now func() time.Time) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: log, now: now, location: loc}
}

// Compute returns the counters of a restaurant for its owner. Day boundaries
// are midnights in the service's time zone.
func (s *Service) Compute(ctx context.Context, restaurantID, ownerID int64) (*models.RestaurantAnalytics, error) {
	requestID := logger.RequestIDFromContext(ctx)

	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &models.NotFoundError{Resource: "restaurant", ID: restaurantID}
	}
	if err != nil {
		return nil, models.Persistence("get restaurant", err)
	}
	if restaurant.OwnerID != ownerID {
		return nil, &models.AuthorizationError{Resource: "restaurant", ID: restaurantID}
	}

	today := models.DayStart(s.now(), s.location)
	yesterday := today.AddDate(0, 0, -1)
	result := &models.RestaurantAnalytics{RestaurantID: restaurantID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountOrders(gctx, storage.OrderFilter{
			RestaurantID:  restaurantID,
			CreatedFrom:   yesterday,
			CreatedBefore: today,
		})
		result.NumYesterdayOrders = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountOrders(gctx, storage.OrderFilter{
			RestaurantID: restaurantID,
			Status:       models.StatusPending,
		})
		result.NumPendingOrders = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountOrders(gctx, storage.OrderFilter{
			RestaurantID:  restaurantID,
			DeliveredFrom: today,
		})
		result.NumDeliveredTodayOrders = n
		return err
	})
	g.Go(func() error {
		sum, err := s.store.SumOrderPrice(gctx, storage.OrderFilter{
			RestaurantID: restaurantID,
			CreatedFrom:  today,
		})
		result.InvoicedToday = sum
		return err
	})
	if err := g.Wait(); err != nil {
		err = models.Persistence("compute analytics", err)
		var pe *models.PersistenceError
		if errors.As(err, &pe) {
			s.logger.Error("analytics_failed", "Failed to compute restaurant analytics", requestID, err, map[string]interface{}{
				"restaurant_id": restaurantID,
				"cause":         pe.Cause(),
			})
		}
		return nil, err
	}

	s.logger.Debug("analytics_computed", "Restaurant analytics computed", requestID, map[string]interface{}{
		"restaurant_id":  restaurantID,
		"day":            today.Format(models.DateLayout),
		"invoiced_today": result.InvoicedToday.StringFixed(2),
	})
	return result, nil
}
