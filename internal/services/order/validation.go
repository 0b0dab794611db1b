package order

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"deliverus/internal/models"
)

const (
	maxAddressLength = 255
	maxQuantity      = 1000
)

func validateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return &models.ValidationError{
			Field:   "address",
			Message: "address is required",
		}
	}
	if utf8.RuneCountInString(address) > maxAddressLength {
		return &models.ValidationError{
			Field:   "address",
			Message: fmt.Sprintf("address must be at most %d characters", maxAddressLength),
		}
	}
	return nil
}

func validateProducts(products []models.LineItemInput) error {
	if len(products) == 0 {
		return &models.ValidationError{
			Field:   "products",
			Message: "products cannot be empty",
		}
	}

	seen := make(map[int64]bool, len(products))
	for i, p := range products {
		if p.ProductID <= 0 {
			return &models.ValidationError{
				Field:   fmt.Sprintf("products[%d].productId", i),
				Message: "productId must be a positive integer",
			}
		}
		if p.Quantity < 1 {
			return &models.ValidationError{
				Field:   fmt.Sprintf("products[%d].quantity", i),
				Message: "quantity must be at least 1",
			}
		}
		if p.Quantity > maxQuantity {
			return &models.ValidationError{
				Field:   fmt.Sprintf("products[%d].quantity", i),
				Message: fmt.Sprintf("quantity must be at most %d", maxQuantity),
			}
		}
		if seen[p.ProductID] {
			return &models.ValidationError{
				Field:   fmt.Sprintf("products[%d].productId", i),
				Message: fmt.Sprintf("product %d is listed more than once", p.ProductID),
			}
		}
		seen[p.ProductID] = true
	}
	return nil
}

// CreateOrderRequest is the input of CreateOrder.
type CreateOrderRequest struct {
	CustomerID     int64
	RestaurantID   int64
	Address        string
	Products       []models.LineItemInput
	IdempotencyKey string
}

func (r *CreateOrderRequest) Validate() error {
	if r.CustomerID <= 0 {
		return &models.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	if r.RestaurantID <= 0 {
		return &models.ValidationError{Field: "restaurantId", Message: "restaurantId must be a positive integer"}
	}
	if err := validateAddress(r.Address); err != nil {
		return err
	}
	return validateProducts(r.Products)
}

// UpdateOrderRequest is the input of UpdateOrder. The restaurant cannot change.
type UpdateOrderRequest struct {
	CustomerID int64
	Address    string
	Products   []models.LineItemInput
}

func (r *UpdateOrderRequest) Validate() error {
	if r.CustomerID <= 0 {
		return &models.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	if err := validateAddress(r.Address); err != nil {
		return err
	}
	return validateProducts(r.Products)
}
