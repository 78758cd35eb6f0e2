package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrNameInUse is returned when registering a product under a name that is
	// already taken.
	ErrNameInUse = errors.New("product name already in use")
)

// Product represents a catalog item together with its current stock.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuantityUpdate sets the stock level of a product. Quantity is the new
// absolute level, not a delta.
type QuantityUpdate struct {
	ID       string
	Quantity int
}

// Repository defines catalog and stock operations for products.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	FindByName(ctx context.Context, name string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// FindAllByID returns the products matching ids in no particular order.
	// Unknown ids are skipped, so the result may be shorter than ids.
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	UpdateQuantity(ctx context.Context, updates []QuantityUpdate) error
}
