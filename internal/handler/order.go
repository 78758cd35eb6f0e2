package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// CreateOrder decodes {"customer_id","products":[{"id","quantity"}]},
// delegates to the order service and maps domain errors to statuses.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "customer_id":
				v, err := d.Str()
				req.CustomerID = v
				return err
			case "products":
				return d.Arr(func(d *jx.Decoder) error {
					var rp order.RequestedProduct
					err := d.Obj(func(d *jx.Decoder, key string) error {
						var err error
						switch key {
						case "id":
							rp.ID, err = d.Str()
						case "quantity":
							rp.Quantity, err = d.Int()
						default:
							err = d.Skip()
						}
						return err
					})
					req.Products = append(req.Products, rp)
					return err
				})
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		writeBodyError(w, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		if status, ok := orderErrorStatus(err); ok {
			writeError(w, status, err.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns a single order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, r, errors.Wrap(err, "get order"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// orderErrorStatus maps validation errors to client statuses. Request-shape
// problems are 400, references to missing or short entities are 422.
func orderErrorStatus(err error) (int, bool) {
	var (
		iq  *order.InvalidQuantityError
		dup *order.DuplicateProductError
	)
	switch {
	case errors.Is(err, order.ErrEmptyProducts), errors.As(err, &iq), errors.As(err, &dup):
		return http.StatusBadRequest, true
	case order.IsValidationError(err):
		return http.StatusUnprocessableEntity, true
	default:
		return 0, false
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customer")
	if o.Customer != nil {
		encodeCustomer(e, o.Customer)
	} else {
		e.Null()
	}
	e.FieldStart("products")
	e.ArrStart()
	for _, li := range o.Products {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(li.ProductID)
		e.FieldStart("price")
		encodeDecimal(e, li.Price)
		e.FieldStart("quantity")
		e.Int(li.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeDecimal(e, o.Total())
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}
