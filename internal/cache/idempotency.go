package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Idempotency remembers which order a client-supplied Idempotency-Key
// produced, scoped per customer.
type Idempotency struct {
	cache Cache
	ttl   time.Duration
}

func NewIdempotency(c Cache, ttl time.Duration) *Idempotency {
	return &Idempotency{cache: c, ttl: ttl}
}

func (i *Idempotency) key(customerID int64, key string) string {
	return i.cache.GenerateKey("create-order", fmt.Sprintf("%d:%s", customerID, key))
}

// Lookup returns the order id stored for the key, if any.
func (i *Idempotency) Lookup(ctx context.Context, customerID int64, key string) (int64, bool, error) {
	raw, err := i.cache.Get(ctx, i.key(customerID, key))
	if err != nil {
		return 0, false, err
	}
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", raw, err)
	}
	return id, true, nil
}

// Remember stores the order id for the key unless another request got there first.
func (i *Idempotency) Remember(ctx context.Context, customerID int64, key string, orderID int64) error {
	_, err := i.cache.SetNX(ctx, i.key(customerID, key), strconv.FormatInt(orderID, 10), i.ttl)
	return err
}
