package customer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// InvalidCustomerError describes a rejected registration field.
type InvalidCustomerError struct {
	Field  string
	Reason string
}

func (e *InvalidCustomerError) Error() string {
	return fmt.Sprintf("invalid customer %s: %s", e.Field, e.Reason)
}

// CreateRequest holds the input for registering a customer.
type CreateRequest struct {
	Name  string
	Email string
}

// Service encapsulates customer registration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a customer Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create registers a new customer. The email must not belong to an existing
// customer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &InvalidCustomerError{Field: "name", Reason: "required"}
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, &InvalidCustomerError{Field: "email", Reason: "required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &InvalidCustomerError{Field: "email", Reason: "malformed address"}
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrEmailInUse
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "find customer by email")
	}

	now := s.now().UTC()
	c := &Customer{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	return c, nil
}

// Get returns the customer with the given id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	return s.repo.FindByID(ctx, id)
}
