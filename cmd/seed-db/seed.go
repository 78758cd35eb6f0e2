package main

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/product"
)

type catalog struct {
	customers []customer.Customer
	products  []product.Product
}

func parseCatalog(data []byte) (*catalog, error) {
	var c catalog
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customers":
			return d.Arr(func(d *jx.Decoder) error {
				var cu customer.Customer
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						cu.ID, err = d.Str()
					case "name":
						cu.Name, err = d.Str()
					case "email":
						cu.Email, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				})
				c.customers = append(c.customers, cu)
				return err
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				var p product.Product
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						p.ID, err = d.Str()
					case "name":
						p.Name, err = d.Str()
					case "price":
						var s string
						if s, err = d.Str(); err == nil {
							p.Price, err = decimal.NewFromString(s)
						}
					case "quantity":
						p.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				c.products = append(c.products, p)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type seeder struct {
	lg        *zap.Logger
	customers customer.Repository
	products  product.Repository
	apikeys   auth.Repository
}

// seed inserts missing customers and products and upserts the API key.
// Existing rows are left untouched so the command can be rerun.
func (s *seeder) seed(ctx context.Context, c *catalog, apiKey string, pepper []byte) error {
	now := time.Now().UTC()

	for _, cu := range c.customers {
		cu.CreatedAt, cu.UpdatedAt = now, now
		err := s.customers.Create(ctx, &cu)
		switch {
		case errors.Is(err, customer.ErrEmailInUse):
			s.lg.Info("Customer exists", zap.String("email", cu.Email))
		case err != nil:
			return errors.Wrapf(err, "seed customer %s", cu.ID)
		default:
			s.lg.Info("Seeded customer", zap.String("id", cu.ID))
		}
	}

	for _, p := range c.products {
		p.CreatedAt, p.UpdatedAt = now, now
		err := s.products.Create(ctx, &p)
		switch {
		case errors.Is(err, product.ErrNameInUse):
			s.lg.Info("Product exists", zap.String("name", p.Name))
		case err != nil:
			return errors.Wrapf(err, "seed product %s", p.ID)
		default:
			s.lg.Info("Seeded product",
				zap.String("id", p.ID),
				zap.Int("quantity", p.Quantity),
			)
		}
	}

	if err := s.apikeys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "seed",
		KeyHash: auth.HashKeyHex(pepper, apiKey),
		Name:    "seed",
		Scopes:  []string{auth.ScopeWrite},
		Active:  true,
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	s.lg.Info("Seeded API key")
	return nil
}
