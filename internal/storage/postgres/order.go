package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, customer_id) VALUES ($1, $2)
		RETURNING created_at`

	createOrderProductSQL = `INSERT INTO orders_products (order_id, position, product_id, price, quantity)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderByIDSQL = `SELECT o.id, o.created_at, c.id, c.name, c.email, c.created_at, c.updated_at
		FROM orders o JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`

	getOrderProductsSQL = `SELECT product_id, price, quantity
		FROM orders_products WHERE order_id = $1 ORDER BY position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its line items in one transaction. Line
// items keep their position so reads return them in request order.
func (r *OrderRepository) Create(ctx context.Context, params order.CreateParams) (*order.Order, error) {
	o := &order.Order{
		ID:       uuid.New().String(),
		Customer: params.Customer,
		Products: params.Products,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, createOrderSQL, o.ID, params.Customer.ID).Scan(&o.CreatedAt); err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		b := &pgx.Batch{}
		for i, li := range params.Products {
			b.Queue(createOrderProductSQL, o.ID, i, li.ProductID, li.Price, li.Quantity)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("inserting order products: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return o, nil
}

// FindByID returns the order with its customer and line items, or
// order.ErrNotFound.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o order.Order
		c customer.Customer
	)
	err := r.pool.QueryRow(ctx, getOrderByIDSQL, id).Scan(
		&o.ID, &o.CreatedAt, &c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o.Customer = &c

	rows, err := r.pool.Query(ctx, getOrderProductsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting products of order %q: %w", id, err)
	}
	o.Products, err = pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("getting products of order %q: %w", id, err)
	}
	return &o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		li       order.LineItem
		price    decimal.Decimal
		quantity int32
	)
	err := row.Scan(&li.ProductID, &price, &quantity)
	li.Price = price
	li.Quantity = int(quantity)
	return li, err
}
