package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*product.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]*product.Product),
	}
}

func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.products {
		if existing.Name == p.Name {
			return product.ErrNameInUse
		}
	}
	clone := *p
	r.products[p.ID] = &clone
	return nil
}

func (r *ProductRepository) FindByName(_ context.Context, name string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.Name == name {
			clone := *p
			return &clone, nil
		}
	}
	return nil, product.ErrNotFound
}

func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// FindAllByID skips unknown and repeated ids.
func (r *ProductRepository) FindAllByID(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// UpdateQuantity applies all levels or none: every id is checked before any
// product is touched.
func (r *ProductRepository) UpdateQuantity(_ context.Context, updates []product.QuantityUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		if _, ok := r.products[u.ID]; !ok {
			return errors.Wrapf(product.ErrNotFound, "update quantity of %q", u.ID)
		}
		if u.Quantity < 0 {
			return errors.Errorf("update quantity of %q: negative level %d", u.ID, u.Quantity)
		}
	}
	now := time.Now().UTC()
	for _, u := range updates {
		p := r.products[u.ID]
		p.Quantity = u.Quantity
		p.UpdatedAt = now
	}
	return nil
}
