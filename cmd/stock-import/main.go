package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/stockimport"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		capacity    uint
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 500, "stock levels per update transaction")
	flag.UintVar(&capacity, "expected-ids", 1_000_000, "expected product ids per feed, sizes the bloom filters")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: stock-import [flags] feed.jsonl.gz [feed.jsonl.gz ...]\n" +
			"Later feeds override earlier ones for the same product.\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, flag.Args(), batchSize, capacity); err != nil {
		lg.Error("Stock import failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, feeds []string, batchSize int, capacity uint) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	im := stockimport.New(postgres.NewProductRepository(pool),
		stockimport.WithLogger(lg),
		stockimport.WithBatchSize(batchSize),
		stockimport.WithEstimates(capacity, 0.001),
	)
	report, err := im.Import(ctx, feeds)
	if err != nil {
		return err
	}

	lg.Info("Stock import completed",
		zap.Int64("records", report.Records),
		zap.Int64("applied", report.Applied),
		zap.Int64("invalid", report.Invalid),
		zap.Int64("unknown", report.Unknown),
		zap.Int("duplicates", len(report.Duplicates)),
	)
	return nil
}
