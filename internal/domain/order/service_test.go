package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// --- Mock implementations ---

type mockCustomerLookup struct {
	byID map[string]*customer.Customer
	err  error
}

func (m *mockCustomerLookup) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

type mockProductStock struct {
	products  []product.Product
	reverse   bool
	findErr   error
	updateErr error

	findCalls int
	updates   [][]product.QuantityUpdate
}

func (m *mockProductStock) FindAllByID(_ context.Context, ids []string) ([]product.Product, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []product.Product
	for _, p := range m.products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	if m.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (m *mockProductStock) UpdateQuantity(_ context.Context, updates []product.QuantityUpdate) error {
	m.updates = append(m.updates, updates)
	return m.updateErr
}

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, params CreateParams) (*Order, error) {
	args := m.Called(ctx, params)
	if fn, ok := args.Get(0).(func(context.Context, CreateParams) *Order); ok {
		return fn(ctx, params), args.Error(1)
	}
	o, _ := args.Get(0).(*Order)
	return o, args.Error(1)
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id string) (*Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*Order)
	return o, args.Error(1)
}

// --- Helpers ---

func newCustomers(ids ...string) *mockCustomerLookup {
	byID := make(map[string]*customer.Customer, len(ids))
	for _, id := range ids {
		byID[id] = &customer.Customer{ID: id, Name: "Customer " + id, Email: id + "@example.com"}
	}
	return &mockCustomerLookup{byID: byID}
}

func newTestProduct(id string, price string, quantity int) product.Product {
	return product.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	}
}

// persistEcho makes the order mock return what it was asked to store, with a
// partially hydrated customer.
func persistEcho(orders *mockOrderRepo) {
	orders.On("Create", mock.Anything, mock.Anything).Return(func(_ context.Context, p CreateParams) *Order {
		return &Order{
			ID:        "o1",
			Customer:  &customer.Customer{ID: p.Customer.ID},
			Products:  p.Products,
			CreatedAt: time.Now(),
		}
	}, nil)
}

func newTestService(t *testing.T, customers CustomerLookup, products ProductStock, orders Repository) *Service {
	t.Helper()
	svc, err := NewService(customers, products, orders)
	require.NoError(t, err)
	return svc
}

// --- Tests ---

func TestCreateOrder_Success(t *testing.T) {
	products := &mockProductStock{products: []product.Product{newTestProduct("p1", "10.0", 5)}}
	orders := &mockOrderRepo{}
	orders.On("Create", mock.Anything, mock.Anything).Return(&Order{ID: "o1", Customer: &customer.Customer{ID: "c1"}}, nil).Run(func(args mock.Arguments) {
		p := args.Get(1).(CreateParams)
		require.Len(t, p.Products, 1)
		assert.Equal(t, "p1", p.Products[0].ProductID)
		assert.True(t, decimal.RequireFromString("10.0").Equal(p.Products[0].Price))
		assert.Equal(t, 2, p.Products[0].Quantity)
		assert.Equal(t, "c1", p.Customer.ID)
	})
	svc := newTestService(t, newCustomers("c1"), products, orders)

	o, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "c1",
		Products:   []RequestedProduct{{ID: "p1", Quantity: 2}},
	})

	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "Customer c1", o.Customer.Name, "customer must be fully hydrated")
	require.Len(t, products.updates, 1)
	assert.Equal(t, []product.QuantityUpdate{{ID: "p1", Quantity: 3}}, products.updates[0])
	orders.AssertNumberOfCalls(t, "Create", 1)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	products := &mockProductStock{products: []product.Product{newTestProduct("p1", "10.0", 1)}}
	orders := &mockOrderRepo{}
	svc := newTestService(t, newCustomers("c1"), products, orders)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "c1",
		Products:   []RequestedProduct{{ID: "p1", Quantity: 2}},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)
	assert.Equal(t, 2, isErr.Requested)
	assert.Equal(t, 1, isErr.Available)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, products.updates)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	products := &mockProductStock{products: []product.Product{newTestProduct("p1", "10.0", 5)}}
	orders := &mockOrderRepo{}
	svc := newTestService(t, newCustomers(), products, orders)

	for _, items := range [][]RequestedProduct{
		{{ID: "p1", Quantity: 1}},
		{{ID: "missing", Quantity: 1}},
		nil,
	} {
		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			CustomerID: "ghost",
			Products:   items,
		})

		var cnf *CustomerNotFoundError
		require.ErrorAs(t, err, &cnf)
		assert.Equal(t, "ghost", cnf.CustomerID)
	}
	assert.Zero(t, products.findCalls)
	assert.Empty(t, products.updates)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	products := &mockProductStock{products: []product.Product{
		newTestProduct("p1", "10.0", 5),
		newTestProduct("p2", "4.5", 5),
	}}
	orders := &mockOrderRepo{}
	svc := newTestService(t, newCustomers("c1"), products, orders)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "c1",
		Products: []RequestedProduct{
			{ID: "p1", Quantity: 1},
			{ID: "x1", Quantity: 1},
			{ID: "p2", Quantity: 1},
			{ID: "x2", Quantity: 1},
		},
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, []string{"x1", "x2"}, pnf.ProductIDs)
	assert.Empty(t, products.updates)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_MatchesProductsByID(t *testing.T) {
	// The store returns products in the opposite order of the request.
	products := &mockProductStock{
		reverse: true,
		products: []product.Product{
			newTestProduct("p1", "10.00", 5),
			newTestProduct("p2", "2.50", 100),
			newTestProduct("p3", "7.25", 3),
		},
	}
	orders := &mockOrderRepo{}
	persistEcho(orders)
	svc := newTestService(t, newCustomers("c1"), products, orders)

	o, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "c1",
		Products: []RequestedProduct{
			{ID: "p3", Quantity: 3},
			{ID: "p1", Quantity: 1},
			{ID: "p2", Quantity: 40},
		},
	})
	require.NoError(t, err)

	require.Len(t, o.Products, 3)
	assert.Equal(t, "p3", o.Products[0].ProductID)
	assert.True(t, decimal.RequireFromString("7.25").Equal(o.Products[0].Price))
	assert.Equal(t, 3, o.Products[0].Quantity)
	assert.Equal(t, "p1", o.Products[1].ProductID)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Products[1].Price))
	assert.Equal(t, "p2", o.Products[2].ProductID)
	assert.Equal(t, 40, o.Products[2].Quantity)
	assert.True(t, decimal.RequireFromString("131.75").Equal(o.Total()))

	require.Len(t, products.updates, 1)
	assert.Equal(t, []product.QuantityUpdate{
		{ID: "p3", Quantity: 0},
		{ID: "p1", Quantity: 4},
		{ID: "p2", Quantity: 60},
	}, products.updates[0])
}

func TestCreateOrder_PriceIsSnapshot(t *testing.T) {
	products := &mockProductStock{products: []product.Product{newTestProduct("p1", "10.00", 5)}}
	orders := &mockOrderRepo{}
	persistEcho(orders)
	svc := newTestService(t, newCustomers("c1"), products, orders)

	o, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "c1",
		Products:   []RequestedProduct{{ID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	products.products[0].Price = decimal.RequireFromString("99.00")
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Products[0].Price))
}

func TestCreateOrder_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		products []RequestedProduct
		check    func(t *testing.T, err error)
	}{
		{
			name: "empty products",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyProducts)
			},
		},
		{
			name:     "zero quantity",
			products: []RequestedProduct{{ID: "p1", Quantity: 0}},
			check: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, "p1", iq.ProductID)
			},
		},
		{
			name:     "negative quantity",
			products: []RequestedProduct{{ID: "p1", Quantity: -3}},
			check: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
			},
		},
		{
			name:     "duplicate product",
			products: []RequestedProduct{{ID: "p1", Quantity: 1}, {ID: "p1", Quantity: 1}},
			check: func(t *testing.T, err error) {
				var dup *DuplicateProductError
				require.ErrorAs(t, err, &dup)
				assert.Equal(t, "p1", dup.ProductID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := &mockProductStock{products: []product.Product{newTestProduct("p1", "1.00", 10)}}
			orders := &mockOrderRepo{}
			svc := newTestService(t, newCustomers("c1"), products, orders)

			_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
				CustomerID: "c1",
				Products:   tt.products,
			})

			tt.check(t, err)
			assert.True(t, IsValidationError(err))
			assert.Zero(t, products.findCalls)
			assert.Empty(t, products.updates)
			orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrder_CollaboratorErrors(t *testing.T) {
	dbErr := errors.New("db down")

	t.Run("customer lookup", func(t *testing.T) {
		svc := newTestService(t, &mockCustomerLookup{err: dbErr}, &mockProductStock{}, &mockOrderRepo{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			CustomerID: "c1",
			Products:   []RequestedProduct{{ID: "p1", Quantity: 1}},
		})
		require.ErrorIs(t, err, dbErr)
		assert.False(t, IsValidationError(err))
	})

	t.Run("product lookup", func(t *testing.T) {
		products := &mockProductStock{findErr: dbErr}
		svc := newTestService(t, newCustomers("c1"), products, &mockOrderRepo{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			CustomerID: "c1",
			Products:   []RequestedProduct{{ID: "p1", Quantity: 1}},
		})
		require.ErrorIs(t, err, dbErr)
		assert.Empty(t, products.updates)
	})

	t.Run("order persistence", func(t *testing.T) {
		products := &mockProductStock{products: []product.Product{newTestProduct("p1", "1.00", 10)}}
		orders := &mockOrderRepo{}
		orders.On("Create", mock.Anything, mock.Anything).Return(nil, dbErr)
		svc := newTestService(t, newCustomers("c1"), products, orders)

		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			CustomerID: "c1",
			Products:   []RequestedProduct{{ID: "p1", Quantity: 1}},
		})
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "create order")
		assert.Empty(t, products.updates)
	})

	t.Run("stock update", func(t *testing.T) {
		products := &mockProductStock{
			products:  []product.Product{newTestProduct("p1", "1.00", 10)},
			updateErr: dbErr,
		}
		orders := &mockOrderRepo{}
		persistEcho(orders)
		svc := newTestService(t, newCustomers("c1"), products, orders)

		_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			CustomerID: "c1",
			Products:   []RequestedProduct{{ID: "p1", Quantity: 1}},
		})
		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "update product quantities")
		orders.AssertNumberOfCalls(t, "Create", 1)
	})
}

func TestGetOrder(t *testing.T) {
	orders := &mockOrderRepo{}
	orders.On("FindByID", mock.Anything, "o1").Return(&Order{ID: "o1"}, nil)
	orders.On("FindByID", mock.Anything, "nope").Return(nil, ErrNotFound)
	svc := newTestService(t, newCustomers(), &mockProductStock{}, orders)

	o, err := svc.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)

	_, err = svc.GetOrder(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
