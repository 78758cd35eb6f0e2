//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kart",
				"POSTGRES_PASSWORD": "kart",
				"POSTGRES_DB":       "kart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	testPool, err = NewPool(ctx, fmt.Sprintf("postgres://kart:kart@%s:%s/kart?sslmode=disable", host, port.Port()))
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Second run must be a no-op.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func seedCatalog(t *testing.T, prefix string) (*customer.Customer, []product.Product) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	c := &customer.Customer{
		ID: prefix + "-c1", Name: "Ada", Email: prefix + "@example.com",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, NewCustomerRepository(testPool).Create(ctx, c))

	products := []product.Product{
		{ID: prefix + "-p1", Name: prefix + " widget", Price: decimal.RequireFromString("10.00"), Quantity: 5},
		{ID: prefix + "-p2", Name: prefix + " gadget", Price: decimal.RequireFromString("2.25"), Quantity: 1},
	}
	repo := NewProductRepository(testPool)
	for i := range products {
		products[i].CreatedAt, products[i].UpdatedAt = now, now
		require.NoError(t, repo.Create(ctx, &products[i]))
	}
	return c, products
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	c, _ := seedCatalog(t, "cust")
	repo := NewCustomerRepository(testPool)

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Email, got.Email)

	got, err = repo.FindByEmail(ctx, c.Email)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	err = repo.Create(ctx, &customer.Customer{ID: "cust-c2", Name: "Copy", Email: c.Email})
	require.ErrorIs(t, err, customer.ErrEmailInUse)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	_, products := seedCatalog(t, "prod")
	repo := NewProductRepository(testPool)

	found, err := repo.FindAllByID(ctx, []string{products[1].ID, "missing", products[0].ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	got, err := repo.GetByID(ctx, products[1].ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.25").Equal(got.Price))

	err = repo.Create(ctx, &product.Product{ID: "prod-p3", Name: products[0].Name, Price: decimal.Zero})
	require.ErrorIs(t, err, product.ErrNameInUse)

	err = repo.UpdateQuantity(ctx, []product.QuantityUpdate{
		{ID: products[0].ID, Quantity: 0},
		{ID: "missing", Quantity: 1},
	})
	require.ErrorIs(t, err, product.ErrNotFound)
	got, err = repo.GetByID(ctx, products[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity, "failed batch is rolled back")

	err = repo.UpdateQuantity(ctx, []product.QuantityUpdate{{ID: products[0].ID, Quantity: -1}})
	require.Error(t, err, "negative stock violates the check constraint")
}

func TestOrderWorkflow(t *testing.T) {
	ctx := context.Background()
	c, products := seedCatalog(t, "ord")

	customers := NewCustomerRepository(testPool)
	productRepo := NewProductRepository(testPool)
	orders := NewOrderRepository(testPool)
	svc, err := order.NewService(customers, productRepo, orders)
	require.NoError(t, err)

	o, err := svc.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID: c.ID,
		Products: []order.RequestedProduct{
			{ID: products[1].ID, Quantity: 1},
			{ID: products[0].ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("22.25").Equal(o.Total()))

	p0, err := productRepo.GetByID(ctx, products[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p0.Quantity)
	p1, err := productRepo.GetByID(ctx, products[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p1.Quantity)

	_, err = testPool.Exec(ctx, `UPDATE products SET price = 99 WHERE id = $1`, products[0].ID)
	require.NoError(t, err)

	stored, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Email, stored.Customer.Email)
	require.Len(t, stored.Products, 2)
	assert.Equal(t, products[1].ID, stored.Products[0].ProductID, "request order is kept")
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.Products[1].Price), "price is a snapshot")

	_, err = svc.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID: c.ID,
		Products:   []order.RequestedProduct{{ID: products[1].ID, Quantity: 1}},
	})
	var insufficient *order.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	_, err = svc.GetOrder(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)
	hash := auth.HashKeyHex([]byte("pepper"), "key")

	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{
		ID: "k1", KeyHash: hash, Name: "test", Scopes: []string{auth.ScopeWrite}, Active: true,
	}))
	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, info.HasScope(auth.ScopeWrite))

	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{ID: "k1", KeyHash: hash, Name: "test", Active: false}))
	_, err = repo.FindByHash(ctx, hash)
	require.ErrorIs(t, err, auth.ErrNotFound)
}
