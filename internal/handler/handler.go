// Package handler exposes the customer, product and order services over
// HTTP with JSON bodies.
package handler

import (
	"net/http"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the /api routes, delegating business logic to the domain
// services.
type Handler struct {
	customers *customer.Service
	products  *product.Service
	orders    *order.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(
	customers *customer.Service,
	products *product.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		customers: customers,
		products:  products,
		orders:    orders,
	}
}

// Register adds all API routes to mux. Write routes are guarded by sec.
func (h *Handler) Register(mux *http.ServeMux, sec *SecurityHandler) {
	write := sec.Require(auth.ScopeWrite)

	mux.Handle("POST /api/customers", write(http.HandlerFunc(h.CreateCustomer)))
	mux.HandleFunc("GET /api/customers/{id}", h.GetCustomer)

	mux.Handle("POST /api/products", write(http.HandlerFunc(h.CreateProduct)))
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.Handle("POST /api/orders", write(http.HandlerFunc(h.CreateOrder)))
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
}
