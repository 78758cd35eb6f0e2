package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// CreateProduct adds a product from {"name","price","quantity"}.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				req.Name, err = d.Str()
			case "price":
				req.Price, err = decodeDecimal(d)
			case "quantity":
				req.Quantity, err = d.Int()
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

	p, err := h.products.Create(r.Context(), req)
	if err != nil {
		var invalid *product.InvalidProductError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.Is(err, product.ErrNameInUse):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(w, r, errors.Wrap(err, "list products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, r, errors.Wrap(err, "get product"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}
