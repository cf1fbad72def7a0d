// Package catalog manages the products sellers list on the storefront.
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecobazaar/storefront/internal/domain"
)

// Product is a seller's catalog listing.
type Product struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	CarbonKg     decimal.Decimal `json:"carbon_kg"`
	Description  string          `json:"description,omitempty"`
	Image        string          `json:"image,omitempty"`
	SellerID     string          `json:"seller_id"`
	EcoCertified bool            `json:"eco_certified"`
	Likes        int64           `json:"likes"`
	Approved     bool            `json:"approved"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CartProduct is the value a shopper adds to the cart for p.
func (p Product) CartProduct() domain.Product {
	return domain.Product{
		ID:       domain.StringID(p.ID),
		Name:     p.Name,
		Price:    domain.NumberPrice(p.Price),
		Carbon:   domain.FormatCarbon(p.CarbonKg),
		Image:    p.Image,
		Category: p.Category,
	}
}

// Filter narrows a product listing. Zero fields match everything.
type Filter struct {
	Category string
	// MaxCarbon keeps products whose footprint is at most this many kg.
	MaxCarbon *decimal.Decimal
	// Query is matched case-insensitively against name and description.
	Query    string
	SellerID string
	// Unapproved includes products not yet approved for shoppers.
	Unapproved bool
}

// Matches reports whether p passes every set criterion.
func (f Filter) Matches(p Product) bool {
	if !f.Unapproved && !p.Approved {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.SellerID != "" && f.SellerID != p.SellerID {
		return false
	}
	if f.MaxCarbon != nil && p.CarbonKg.GreaterThan(*f.MaxCarbon) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q)
	}
	return true
}

// WithoutQuery returns f with the text criterion cleared.
func (f Filter) WithoutQuery() Filter {
	f.Query = ""
	return f
}
