// Package seed loads a restaurant catalog from YAML for local runs.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"deliverus/internal/logger"
	"deliverus/internal/models"
	"deliverus/internal/storage"
)

// File is the seed document. Prices are strings so they parse exactly.
type File struct {
	Restaurants []Restaurant `yaml:"restaurants"`
}

type Restaurant struct {
	OwnerID       int64     `yaml:"owner_id"`
	Name          string    `yaml:"name"`
	ShippingCosts string    `yaml:"shipping_costs"`
	Products      []Product `yaml:"products"`
}

type Product struct {
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	Available *bool  `yaml:"available"`
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

func money(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q: %w", field, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: amount %q must not be negative", field, raw)
	}
	return d, nil
}

// Apply writes every restaurant and its products to the catalog and returns
// the created restaurants.
func Apply(ctx context.Context, catalog storage.Catalog, f *File, log *logger.Logger) ([]models.Restaurant, error) {
	requestID := logger.RequestIDFromContext(ctx)
	created := make([]models.Restaurant, 0, len(f.Restaurants))

	for i, r := range f.Restaurants {
		shipping, err := money(fmt.Sprintf("restaurants[%d].shipping_costs", i), r.ShippingCosts)
		if err != nil {
			return created, err
		}
		rest := models.Restaurant{OwnerID: r.OwnerID, Name: r.Name, ShippingCosts: shipping}
		if err := catalog.CreateRestaurant(ctx, &rest); err != nil {
			return created, fmt.Errorf("failed to create restaurant %q: %w", r.Name, err)
		}

		for j, p := range r.Products {
			price, err := money(fmt.Sprintf("restaurants[%d].products[%d].price", i, j), p.Price)
			if err != nil {
				return created, err
			}
			product := models.Product{
				RestaurantID: rest.ID,
				Name:         p.Name,
				Price:        price,
				Availability: p.Available == nil || *p.Available,
			}
			if err := catalog.CreateProduct(ctx, &product); err != nil {
				return created, fmt.Errorf("failed to create product %q: %w", p.Name, err)
			}
		}

		log.Info("restaurant_seeded", fmt.Sprintf("Seeded restaurant %s", rest.Name), requestID, map[string]interface{}{
			"restaurant_id": rest.ID,
			"owner_id":      rest.OwnerID,
			"products":      len(r.Products),
		})
		created = append(created, rest)
	}
	return created, nil
}
