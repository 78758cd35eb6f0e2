package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/customer"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a customer's purchase of one or more products.
type Order struct {
	ID        string
	Customer  *customer.Customer
	Products  []LineItem
	CreatedAt time.Time
}

// LineItem represents a single product entry in an order. Price is copied
// from the product when the order is created.
type LineItem struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// Total returns the sum of price times quantity over all line items.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Products {
		total = total.Add(li.Price.Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return total.Round(2)
}

// CreateParams holds what the persistence layer needs to store a new order.
type CreateParams struct {
	Customer *customer.Customer
	Products []LineItem
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores a new order with its line items and returns it with the
	// identifier and timestamps assigned by the store.
	Create(ctx context.Context, params CreateParams) (*Order, error)
	FindByID(ctx context.Context, id string) (*Order, error)
}
