package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/customer"
)

const (
	createCustomerSQL = `INSERT INTO customers (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	getCustomerByIDSQL = `SELECT id, name, email, created_at, updated_at
		FROM customers WHERE id = $1`

	getCustomerByEmailSQL = `SELECT id, name, email, created_at, updated_at
		FROM customers WHERE email = $1`
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts a new customer. A duplicate email maps to
// customer.ErrEmailInUse.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, createCustomerSQL, c.ID, c.Name, c.Email, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return customer.ErrEmailInUse
		}
		return fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
	return nil
}

// FindByID returns the customer with the given id or customer.ErrNotFound.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByIDSQL, id)
}

// FindByEmail returns the customer registered under email or
// customer.ErrNotFound.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByEmailSQL, email)
}

func (r *CustomerRepository) findOne(ctx context.Context, sql, arg string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	return &c, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
