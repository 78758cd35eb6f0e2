package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*order.Order),
	}
}

func (r *OrderRepository) Create(_ context.Context, params order.CreateParams) (*order.Order, error) {
	o := &order.Order{
		ID:        uuid.New().String(),
		Customer:  params.Customer,
		Products:  slices.Clone(params.Products),
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.orders[o.ID] = cloneOrder(o)
	r.mu.Unlock()

	return o, nil
}

func (r *OrderRepository) FindByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func cloneOrder(o *order.Order) *order.Order {
	clone := *o
	clone.Products = slices.Clone(o.Products)
	if o.Customer != nil {
		c := *o.Customer
		clone.Customer = &c
	}
	return &clone
}
