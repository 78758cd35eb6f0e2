package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	productColumns = `id, name, price, quantity, created_at, updated_at`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY name`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductByNameSQL = `SELECT ` + productColumns + ` FROM products WHERE name = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	updateProductQuantitySQL = `UPDATE products SET quantity = $2, updated_at = now() WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a new product. A duplicate name maps to product.ErrNameInUse.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Price, p.Quantity, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrNameInUse
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// List returns all products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.findOne(ctx, getProductByIDSQL, id)
}

// FindByName returns the product with the given name.
func (r *ProductRepository) FindByName(ctx context.Context, name string) (*product.Product, error) {
	return r.findOne(ctx, getProductByNameSQL, name)
}

// FindAllByID returns products matching any of the given IDs.
func (r *ProductRepository) FindAllByID(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// UpdateQuantity sets every listed stock level inside one transaction. An
// unknown product id aborts the whole batch with product.ErrNotFound.
func (r *ProductRepository) UpdateQuantity(ctx context.Context, updates []product.QuantityUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, u := range updates {
			b.Queue(updateProductQuantitySQL, u.ID, u.Quantity)
		}

		br := tx.SendBatch(ctx, b)
		for _, u := range updates {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("updating quantity of product %q: %w", u.ID, err)
			}
			if tag.RowsAffected() == 0 {
				_ = br.Close()
				return fmt.Errorf("updating quantity of product %q: %w", u.ID, product.ErrNotFound)
			}
		}
		return br.Close()
	})
}

func (r *ProductRepository) findOne(ctx context.Context, sql, arg string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		price    decimal.Decimal
		quantity int32
	)
	err := row.Scan(&p.ID, &p.Name, &price, &quantity, &p.CreatedAt, &p.UpdatedAt)
	p.Price = price
	p.Quantity = int(quantity)
	return p, err
}
