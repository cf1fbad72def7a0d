package recommend

import (
	"github.com/ecobazaar/storefront/internal/domain"
)

// Record is a product as the recommendation service returns it. It decodes
// the same aliases as domain.Product: product_id, a numeric carbon_footprint,
// image_path and so on.
type Record domain.Product

func (r Record) MarshalJSON() ([]byte, error) {
	return domain.Product(r).MarshalJSON()
}

func (r *Record) UnmarshalJSON(data []byte) error {
	return (*domain.Product)(r).UnmarshalJSON(data)
}

// Product converts r into a value the cart accepts. Numeric prices are
// written out in plain decimal with a rupee sign, and a missing price reads
// "₹0"; a missing footprint reads "0 kg CO₂e".
func (r Record) Product() domain.Product {
	p := domain.Product(r)
	switch {
	case p.Price.IsZero() || (p.Price.IsNumeric() && p.Price.Amount().IsZero()):
		p.Price = domain.TextPrice("₹0")
	case p.Price.IsNumeric():
		p.Price = domain.TextPrice("₹" + p.Price.Amount().String())
	}
	if p.Carbon == "" {
		p.Carbon = "0 " + domain.CarbonUnit
	}
	return p
}

// Products converts records in order.
func Products(records []Record) []domain.Product {
	out := make([]domain.Product, len(records))
	for i, r := range records {
		out[i] = r.Product()
	}
	return out
}
