package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/customer"
)

// CreateCustomer registers a customer from {"name","email"}.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				req.Name, err = d.Str()
			case "email":
				req.Email, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		writeBodyError(w, err)
		return
	}

	c, err := h.customers.Create(r.Context(), req)
	if err != nil {
		var invalid *customer.InvalidCustomerError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.Is(err, customer.ErrEmailInUse):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCustomer(e, c) })
}

// GetCustomer returns a single customer by id.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCustomer(e, c) })
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("email")
	e.Str(c.Email)
	e.FieldStart("created_at")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}
