package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ecobazaar/storefront/internal/storage"
	apperrors "github.com/ecobazaar/storefront/pkg/errors"
	"github.com/ecobazaar/storefront/pkg/slug"
)

// KeyProducts is the storage key holding the whole catalog.
const KeyProducts = "catalog:products"

// Repository defines product persistence.
type Repository interface {
	// Create stores a new product. Its slug gets a numeric suffix when another
	// product already uses it.
	Create(ctx context.Context, product *Product) error

	// GetByID retrieves a product by its identifier.
	GetByID(ctx context.Context, id string) (*Product, error)

	// GetBySlug retrieves a product by its URL slug.
	GetBySlug(ctx context.Context, slug string) (*Product, error)

	// List returns the products matching filter in the order they were created.
	List(ctx context.Context, filter Filter) ([]Product, error)

	// Update applies fn to the stored product and saves the result. Nothing
	// is saved when fn fails.
	Update(ctx context.Context, id string, fn func(*Product) error) (*Product, error)

	// Delete removes a product.
	Delete(ctx context.Context, id string) error
}

// KVRepository keeps the catalog as one JSON document in a storage.KV. The
// document is read once and every change is written through before it is
// visible, so a failed write leaves the catalog unchanged.
type KVRepository struct {
	kv storage.KV

	mu       sync.RWMutex
	loaded   bool
	products []Product
}

// NewKVRepository creates a catalog repository over kv.
func NewKVRepository(kv storage.KV) *KVRepository {
	return &KVRepository{kv: kv}
}

func (r *KVRepository) Create(ctx context.Context, product *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if r.indexLocked(product.ID) >= 0 {
		return apperrors.Conflict(fmt.Sprintf("product %q already exists", product.ID))
	}

	product.Slug = slug.Unique(product.Slug, func(s string) bool {
		return r.slugLocked(s) >= 0
	})
	next := append(append(make([]Product, 0, len(r.products)+1), r.products...), *product)
	return r.saveLocked(ctx, next)
}

func (r *KVRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	return r.find(ctx, id, r.indexLocked)
}

func (r *KVRepository) GetBySlug(ctx context.Context, s string) (*Product, error) {
	return r.find(ctx, s, r.slugLocked)
}

func (r *KVRepository) find(ctx context.Context, key string, index func(string) int) (*Product, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := index(key)
	if i < 0 {
		return nil, apperrors.NotFound("product", key)
	}
	p := r.products[i]
	return &p, nil
}

func (r *KVRepository) List(ctx context.Context, filter Filter) ([]Product, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *KVRepository) Update(ctx context.Context, id string, fn func(*Product) error) (*Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	i := r.indexLocked(id)
	if i < 0 {
		return nil, apperrors.NotFound("product", id)
	}

	p := r.products[i]
	if err := fn(&p); err != nil {
		return nil, err
	}
	p.ID, p.Slug = r.products[i].ID, r.products[i].Slug

	next := append(make([]Product, 0, len(r.products)), r.products...)
	next[i] = p
	if err := r.saveLocked(ctx, next); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *KVRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	i := r.indexLocked(id)
	if i < 0 {
		return apperrors.NotFound("product", id)
	}

	next := make([]Product, 0, len(r.products)-1)
	next = append(append(next, r.products[:i]...), r.products[i+1:]...)
	return r.saveLocked(ctx, next)
}

func (r *KVRepository) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

// loadLocked reads the catalog on first use. A read failure is returned and
// retried on the next call; an absent key is an empty catalog.
func (r *KVRepository) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	data, err := r.kv.Get(ctx, KeyProducts)
	switch {
	case storage.IsNotFound(err):
		r.products = []Product{}
	case err != nil:
		return apperrors.Unavailable("catalog storage", err)
	default:
		var products []Product
		if err := json.Unmarshal(data, &products); err != nil {
			return apperrors.Internal(fmt.Errorf("decode catalog: %w", err))
		}
		r.products = products
	}
	r.loaded = true
	return nil
}

func (r *KVRepository) saveLocked(ctx context.Context, products []Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("encode catalog: %w", err))
	}
	if err := r.kv.Set(ctx, KeyProducts, data); err != nil {
		return apperrors.Unavailable("catalog storage", err)
	}
	r.products = products
	return nil
}

func (r *KVRepository) indexLocked(id string) int {
	for i, p := range r.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *KVRepository) slugLocked(s string) int {
	for i, p := range r.products {
		if p.Slug == s {
			return i
		}
	}
	return -1
}
