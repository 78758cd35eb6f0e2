package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested customer does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrEmailInUse is returned when registering an email that already belongs
	// to another customer.
	ErrEmailInUse = errors.New("email already in use")
)

// Customer represents a registered buyer.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence operations for customers.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	FindByID(ctx context.Context, id string) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
}
