package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvalidProductError describes a rejected catalog field.
type InvalidProductError struct {
	Field  string
	Reason string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.Field, e.Reason)
}

// CreateRequest holds the input for adding a product to the catalog.
type CreateRequest struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// Service encapsulates catalog management.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a product Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create adds a product with its initial stock. Names are unique.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &InvalidProductError{Field: "name", Reason: "required"}
	}
	if req.Price.IsNegative() {
		return nil, &InvalidProductError{Field: "price", Reason: "must not be negative"}
	}
	if req.Quantity < 0 {
		return nil, &InvalidProductError{Field: "quantity", Reason: "must not be negative"}
	}

	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case err == nil && existing != nil:
		return nil, ErrNameInUse
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "find product by name")
	}

	now := s.now().UTC()
	p := &Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     req.Price.Round(2),
		Quantity:  req.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Get returns the product with the given id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}
