package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// ErrEmptyProducts is returned when an order request lists no products.
var ErrEmptyProducts = errors.New("products required")

// CustomerNotFoundError indicates the ordering customer does not exist.
type CustomerNotFoundError struct {
	CustomerID string
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("customer %s not found", e.CustomerID)
}

// ProductNotFoundError indicates one or more requested products do not exist.
type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	if len(e.ProductIDs) == 1 {
		return fmt.Sprintf("product %s not found", e.ProductIDs[0])
	}
	return fmt.Sprintf("products %s not found", strings.Join(e.ProductIDs, ", "))
}

// InsufficientStockError indicates a requested quantity exceeds the stock
// available for a product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidQuantityError indicates a requested product has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// DuplicateProductError indicates the same product was requested more than once.
type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("product %s requested more than once", e.ProductID)
}

// IsValidationError reports whether err is a rejection of the request itself
// rather than an infrastructure failure. Validation errors must not be retried.
func IsValidationError(err error) bool {
	return rejectReason(err) != ""
}

func rejectReason(err error) string {
	var (
		cnf *CustomerNotFoundError
		pnf *ProductNotFoundError
		is  *InsufficientStockError
		iq  *InvalidQuantityError
		dup *DuplicateProductError
	)
	switch {
	case errors.As(err, &cnf):
		return "customer_not_found"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &is):
		return "insufficient_stock"
	case errors.As(err, &iq):
		return "invalid_quantity"
	case errors.As(err, &dup):
		return "duplicate_product"
	case errors.Is(err, ErrEmptyProducts):
		return "empty_products"
	default:
		return ""
	}
}

// RequestedProduct is a product id with the quantity the customer wants.
type RequestedProduct struct {
	ID       string
	Quantity int
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	CustomerID string
	Products   []RequestedProduct
}

// CustomerLookup resolves customers by id.
type CustomerLookup interface {
	FindByID(ctx context.Context, id string) (*customer.Customer, error)
}

// ProductStock resolves products and sets their stock levels.
type ProductStock interface {
	FindAllByID(ctx context.Context, ids []string) ([]product.Product, error)
	UpdateQuantity(ctx context.Context, updates []product.QuantityUpdate) error
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for workflow spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("github.com/xenking/kart-orders/internal/domain/order")
	}
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meter = mp.Meter("github.com/xenking/kart-orders/internal/domain/order")
	}
}

// Service encapsulates order creation business logic.
type Service struct {
	customers CustomerLookup
	products  ProductStock
	orders    Repository

	tracer   trace.Tracer
	meter    metric.Meter
	created  metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService creates an order Service with the required collaborators.
func NewService(
	customers CustomerLookup,
	products ProductStock,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		customers: customers,
		products:  products,
		orders:    orders,
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		meter:     metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.created, err = s.meter.Int64Counter("orders.created",
		metric.WithDescription("Number of orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.rejected, err = s.meter.Int64Counter("orders.rejected",
		metric.WithDescription("Number of order requests rejected by validation"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.rejected counter")
	}
	return s, nil
}

// CreateOrder resolves the customer and requested products, checks stock,
// persists the order with price snapshots and then writes the decremented
// stock levels. Nothing is written when validation fails.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.products", len(req.Products)),
	))
	defer func() {
		if rerr != nil {
			if reason := rejectReason(rerr); reason != "" {
				s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
			}
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	c, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, &CustomerNotFoundError{CustomerID: req.CustomerID}
		}
		return nil, errors.Wrap(err, "find customer")
	}

	ids, err := requestedIDs(req.Products)
	if err != nil {
		return nil, err
	}

	found, err := s.products.FindAllByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	byID := make(map[string]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &ProductNotFoundError{ProductIDs: missing}
	}

	for _, rp := range req.Products {
		if p := byID[rp.ID]; rp.Quantity > p.Quantity {
			return nil, &InsufficientStockError{
				ProductID: rp.ID,
				Requested: rp.Quantity,
				Available: p.Quantity,
			}
		}
	}

	items := make([]LineItem, len(req.Products))
	for i, rp := range req.Products {
		items[i] = LineItem{
			ProductID: rp.ID,
			Price:     byID[rp.ID].Price,
			Quantity:  rp.Quantity,
		}
	}

	o, err := s.orders.Create(ctx, CreateParams{Customer: c, Products: items})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	// The store may hand back a partially hydrated customer.
	o.Customer = c

	updates := make([]product.QuantityUpdate, len(req.Products))
	for i, rp := range req.Products {
		updates[i] = product.QuantityUpdate{
			ID:       rp.ID,
			Quantity: byID[rp.ID].Quantity - rp.Quantity,
		}
	}
	if err := s.products.UpdateQuantity(ctx, updates); err != nil {
		return nil, errors.Wrap(err, "update product quantities")
	}

	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", o.ID))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", c.ID),
		zap.Int("line_items", len(items)),
	)
	return o, nil
}

// GetOrder returns the order with the given id, or ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.FindByID(ctx, id)
}

// requestedIDs validates the request shape and returns product ids in
// request order.
func requestedIDs(products []RequestedProduct) ([]string, error) {
	if len(products) == 0 {
		return nil, ErrEmptyProducts
	}
	ids := make([]string, len(products))
	seen := make(map[string]struct{}, len(products))
	for i, rp := range products {
		if rp.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: rp.ID}
		}
		if _, ok := seen[rp.ID]; ok {
			return nil, &DuplicateProductError{ProductID: rp.ID}
		}
		seen[rp.ID] = struct{}{}
		ids[i] = rp.ID
	}
	return ids, nil
}
