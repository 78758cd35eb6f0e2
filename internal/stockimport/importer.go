// Package stockimport applies absolute stock levels from gzip-compressed
// JSON-lines feeds to the product catalog.
//
// Feeds are read twice. The first pass builds one bloom filter of product ids
// per feed. The second pass applies ids that no other feed can contain
// straight away and holds back the rest, which are then resolved exactly:
// when an id appears in several feeds the feed listed last wins.
package stockimport

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// Store is the part of the product repository the importer writes through.
type Store interface {
	FindAllByID(ctx context.Context, ids []string) ([]product.Product, error)
	UpdateQuantity(ctx context.Context, updates []product.QuantityUpdate) error
}

// Report summarizes an import.
type Report struct {
	Records    int64 // valid records read
	Invalid    int64 // malformed records skipped
	Applied    int64 // stock levels written
	Unknown    int64 // records for ids missing from the catalog
	Duplicates []string
}

// Importer applies stock feeds to a Store.
type Importer struct {
	store     Store
	lg        *zap.Logger
	batchSize int
	capacity  uint
	fpRate    float64
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the progress logger.
func WithLogger(lg *zap.Logger) Option {
	return func(im *Importer) { im.lg = lg }
}

// WithBatchSize sets how many levels go into one UpdateQuantity call.
func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithEstimates sizes the per-feed bloom filters.
func WithEstimates(capacity uint, fpRate float64) Option {
	return func(im *Importer) {
		im.capacity = capacity
		im.fpRate = fpRate
	}
}

// New returns an Importer writing to store.
func New(store Store, opts ...Option) *Importer {
	im := &Importer{
		store:     store,
		lg:        zap.NewNop(),
		batchSize: 500,
		capacity:  1_000_000,
		fpRate:    0.001,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

type counters struct {
	records, invalid, applied, unknown atomic.Int64
}

// Import applies feeds in order of precedence: a later path overrides an
// earlier one for the same product.
func (im *Importer) Import(ctx context.Context, paths []string) (*Report, error) {
	if len(paths) == 0 {
		return nil, errors.New("no feeds given")
	}

	filters, err := im.buildFilters(ctx, paths)
	if err != nil {
		return nil, errors.Wrap(err, "build filters")
	}

	var c counters
	held, err := im.applyUnique(ctx, paths, filters, &c)
	if err != nil {
		return nil, errors.Wrap(err, "apply unique levels")
	}

	duplicates, err := im.applyHeld(ctx, held, &c)
	if err != nil {
		return nil, errors.Wrap(err, "apply overlapping levels")
	}

	return &Report{
		Records:    c.records.Load(),
		Invalid:    c.invalid.Load(),
		Applied:    c.applied.Load(),
		Unknown:    c.unknown.Load(),
		Duplicates: duplicates,
	}, nil
}

func (im *Importer) buildFilters(ctx context.Context, paths []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f := bloom.NewWithEstimates(im.capacity, im.fpRate)
			if _, err := readFile(ctx, path, func(l Level) error {
				f.AddString(l.ID)
				return nil
			}); err != nil {
				return err
			}
			filters[i] = f
			im.lg.Info("Feed indexed", zap.String("feed", path))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// applyUnique writes levels of ids absent from every other feed's filter and
// returns, per feed, the last level of each id that may be shared.
func (im *Importer) applyUnique(
	ctx context.Context,
	paths []string,
	filters []*bloom.BloomFilter,
	c *counters,
) ([]map[string]int, error) {
	held := make([]map[string]int, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			shared := make(map[string]int)
			batch := make([]product.QuantityUpdate, 0, im.batchSize)

			invalid, err := readFile(ctx, path, func(l Level) error {
				c.records.Add(1)
				for j, f := range filters {
					if j != i && f.TestString(l.ID) {
						shared[l.ID] = l.Quantity
						return nil
					}
				}
				batch = append(batch, product.QuantityUpdate{ID: l.ID, Quantity: l.Quantity})
				if len(batch) < im.batchSize {
					return nil
				}
				err := im.apply(ctx, batch, c)
				batch = batch[:0]
				return err
			})
			c.invalid.Add(int64(invalid))
			if err != nil {
				return err
			}
			if err := im.apply(ctx, batch, c); err != nil {
				return err
			}

			held[i] = shared
			im.lg.Info("Feed applied",
				zap.String("feed", path),
				zap.Int("invalid", invalid),
				zap.Int("held", len(shared)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return held, nil
}

// applyHeld resolves held levels so the last feed wins and reports ids that
// really occur in more than one feed.
func (im *Importer) applyHeld(ctx context.Context, held []map[string]int, c *counters) ([]string, error) {
	type resolved struct {
		quantity int
		feeds    int
	}
	merged := make(map[string]*resolved)
	for _, shared := range held {
		for id, q := range shared {
			r, ok := merged[id]
			if !ok {
				r = &resolved{}
				merged[id] = r
			}
			r.quantity = q
			r.feeds++
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var duplicates []string
	batch := make([]product.QuantityUpdate, 0, im.batchSize)
	for _, id := range ids {
		r := merged[id]
		if r.feeds > 1 {
			duplicates = append(duplicates, id)
		}
		batch = append(batch, product.QuantityUpdate{ID: id, Quantity: r.quantity})
		if len(batch) == im.batchSize {
			if err := im.apply(ctx, batch, c); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}
	if err := im.apply(ctx, batch, c); err != nil {
		return nil, err
	}

	if len(duplicates) > 0 {
		im.lg.Warn("Products listed in several feeds, last feed wins",
			zap.Strings("ids", duplicates),
		)
	}
	return duplicates, nil
}

// apply writes the levels of known products. Unknown ids are counted and
// skipped.
func (im *Importer) apply(ctx context.Context, batch []product.QuantityUpdate, c *counters) error {
	if len(batch) == 0 {
		return nil
	}

	ids := make([]string, len(batch))
	for i, u := range batch {
		ids[i] = u.ID
	}
	found, err := im.store.FindAllByID(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "find products")
	}
	known := make(map[string]struct{}, len(found))
	for _, p := range found {
		known[p.ID] = struct{}{}
	}

	updates := make([]product.QuantityUpdate, 0, len(batch))
	for _, u := range batch {
		if _, ok := known[u.ID]; ok {
			updates = append(updates, u)
		}
	}
	c.unknown.Add(int64(len(batch) - len(updates)))
	if len(updates) == 0 {
		return nil
	}

	if err := im.store.UpdateQuantity(ctx, updates); err != nil {
		return errors.Wrap(err, "update quantity")
	}
	c.applied.Add(int64(len(updates)))
	return nil
}
