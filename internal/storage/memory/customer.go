// Package memory implements the domain repositories on process memory. It is
// used for local runs without a database and in tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/xenking/kart-orders/internal/domain/customer"
)

var _ customer.Repository = (*CustomerRepository)(nil)

type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]*customer.Customer
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		customers: make(map[string]*customer.Customer),
	}
}

func (r *CustomerRepository) Create(_ context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return customer.ErrEmailInUse
		}
	}
	clone := *c
	r.customers[c.ID] = &clone
	return nil
}

func (r *CustomerRepository) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *CustomerRepository) FindByEmail(_ context.Context, email string) (*customer.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.customers {
		if strings.EqualFold(c.Email, email) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, customer.ErrNotFound
}
