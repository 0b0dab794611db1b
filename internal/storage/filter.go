package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Where renders the filter as a predicate over the orders table aliased "o".
// placeholder returns the bind marker for the n-th argument (1-based) and
// timeArg converts instants into the dialect's bind value.
func (f OrderFilter) Where(placeholder func(n int) string, timeArg func(time.Time) any) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(expr, placeholder(len(args))))
	}

	if f.RestaurantID != 0 {
		add("o.restaurant_id = %s", f.RestaurantID)
	}
	if f.CustomerID != 0 {
		add("o.customer_id = %s", f.CustomerID)
	}
	if f.Status != "" {
		add("o.status = %s", string(f.Status))
	}
	if !f.CreatedFrom.IsZero() {
		add("o.created_at >= %s", timeArg(f.CreatedFrom))
	}
	if !f.CreatedBefore.IsZero() {
		add("o.created_at < %s", timeArg(f.CreatedBefore))
	}
	if !f.DeliveredFrom.IsZero() {
		add("o.delivered_at >= %s", timeArg(f.DeliveredFrom))
	}

	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// CheckColumns reports every RequiredColumns entry missing from present,
// which is keyed "table.column".
func CheckColumns(present map[string]bool) error {
	var missing []string
	for table, columns := range RequiredColumns {
		for _, c := range columns {
			if !present[table+"."+c] {
				missing = append(missing, table+"."+c)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
