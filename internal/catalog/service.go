package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/slug"
)

// searchLimit caps how many ranked ids are requested from a Searcher.
const searchLimit = 500

// Service implements the catalog operations sellers and shoppers use.
type Service struct {
	repo     Repository
	searcher Searcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a catalog service. searcher may be nil, in which case
// text queries match by substring.
func NewService(repo Repository, searcher Searcher, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		searcher: searcher,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateProductInput holds the parameters for listing a new product.
type CreateProductInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Category     string          `json:"category" validate:"required,max=100"`
	Price        decimal.Decimal `json:"price"`
	CarbonKg     decimal.Decimal `json:"carbon_kg"`
	Description  string          `json:"description" validate:"max=2000"`
	Image        string          `json:"image" validate:"omitempty,url"`
	EcoCertified bool            `json:"eco_certified"`
}

// UpdateProductInput holds the fields to change; nil fields are kept.
type UpdateProductInput struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category     *string          `json:"category" validate:"omitempty,min=1,max=100"`
	Price        *decimal.Decimal `json:"price"`
	CarbonKg     *decimal.Decimal `json:"carbon_kg"`
	Description  *string          `json:"description" validate:"omitempty,max=2000"`
	Image        *string          `json:"image" validate:"omitempty,url"`
	EcoCertified *bool            `json:"eco_certified"`
}

// CreateProduct lists a new product for sellerID. Listings are approved as
// soon as they are created.
func (s *Service) CreateProduct(ctx context.Context, sellerID string, input *CreateProductInput) (*Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("product name is required")
	}
	if err := checkAmounts(&input.Price, &input.CarbonKg); err != nil {
		return nil, err
	}

	now := s.now()
	product := &Product{
		ID:           uuid.New().String(),
		Slug:         productSlug(input.Name),
		Name:         strings.TrimSpace(input.Name),
		Category:     strings.TrimSpace(input.Category),
		Price:        input.Price,
		CarbonKg:     input.CarbonKg,
		Description:  input.Description,
		Image:        input.Image,
		SellerID:     sellerID,
		EcoCertified: input.EcoCertified,
		Approved:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.index(ctx, *product)
	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("slug", product.Slug),
		slog.String("seller_id", sellerID),
	)
	return product, nil
}

// UpdateProduct changes a product owned by sellerID. Another seller's product
// is reported as not found.
func (s *Service) UpdateProduct(ctx context.Context, sellerID, id string, input *UpdateProductInput) (*Product, error) {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.InvalidInput("product name must not be empty")
	}
	if err := checkAmounts(input.Price, input.CarbonKg); err != nil {
		return nil, err
	}

	product, err := s.repo.Update(ctx, id, func(p *Product) error {
		if p.SellerID != sellerID {
			return apperrors.NotFound("product", id)
		}
		if input.Name != nil {
			p.Name = strings.TrimSpace(*input.Name)
		}
		if input.Category != nil {
			p.Category = strings.TrimSpace(*input.Category)
		}
		if input.Price != nil {
			p.Price = *input.Price
		}
		if input.CarbonKg != nil {
			p.CarbonKg = *input.CarbonKg
		}
		if input.Description != nil {
			p.Description = *input.Description
		}
		if input.Image != nil {
			p.Image = *input.Image
		}
		if input.EcoCertified != nil {
			p.EcoCertified = *input.EcoCertified
		}
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.index(ctx, *product)
	s.logger.InfoContext(ctx, "product updated", slog.String("product_id", id))
	return product, nil
}

// DeleteProduct removes a product owned by sellerID.
func (s *Service) DeleteProduct(ctx context.Context, sellerID, id string) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product.SellerID != sellerID {
		return apperrors.NotFound("product", id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if s.searcher != nil {
		if err := s.searcher.Remove(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to remove product from search index",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))
	return nil
}

// GetProduct looks a product up by id, then by slug. Unapproved products are
// only visible to their seller.
func (s *Service) GetProduct(ctx context.Context, idOrSlug string) (*Product, error) {
	product, err := s.repo.GetByID(ctx, idOrSlug)
	if errors.Is(err, apperrors.ErrNotFound) {
		product, err = s.repo.GetBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// ListProducts returns the products matching filter. With a text query and a
// Searcher, results are ordered by relevance; if the Searcher fails the query
// falls back to substring matching in creation order.
func (s *Service) ListProducts(ctx context.Context, filter Filter) ([]Product, error) {
	if s.searcher == nil || strings.TrimSpace(filter.Query) == "" {
		products, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		return products, nil
	}

	ids, err := s.searcher.Search(ctx, filter.Query, searchLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "product search failed, matching by substring",
			slog.String("query", filter.Query),
			slog.String("error", err.Error()),
		)
		products, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		return products, nil
	}

	candidates, err := s.repo.List(ctx, filter.WithoutQuery())
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	byID := make(map[string]Product, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
	}
	ranked := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ranked = append(ranked, p)
		}
	}
	return ranked, nil
}

// LikeProduct adds one like to an approved product and returns it.
func (s *Service) LikeProduct(ctx context.Context, id string) (*Product, error) {
	product, err := s.repo.Update(ctx, id, func(p *Product) error {
		if !p.Approved {
			return apperrors.NotFound("product", id)
		}
		p.Likes++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("like product: %w", err)
	}
	return product, nil
}

// index mirrors product into the search index. Failures only cost ranking
// quality, so they are logged.
func (s *Service) index(ctx context.Context, product Product) {
	if s.searcher == nil {
		return
	}
	if err := s.searcher.Index(ctx, product); err != nil {
		s.logger.WarnContext(ctx, "failed to index product",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}
}

func checkAmounts(price, carbon *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return apperrors.InvalidInput("price must not be negative")
	}
	if carbon != nil && carbon.IsNegative() {
		return apperrors.InvalidInput("carbon_kg must not be negative")
	}
	return nil
}

func productSlug(name string) string {
	if s := slug.Generate(name); s != "" {
		return s
	}
	return "product"
}
