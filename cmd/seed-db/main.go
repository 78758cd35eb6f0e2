package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/db"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		apiKey      string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "", "path to a catalog JSON file (defaults to the embedded sample)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed with write scope (or KART_SEED_API_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
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
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or KART_SEED_API_KEY")
	}
	if pepper == "" {
		pepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile, apiKey, []byte(pepper)); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile, apiKey string, pepper []byte) error {
	var (
		data []byte
		err  error
	)
	if catalogFile == "" {
		data, err = db.Seed.ReadFile("seed/catalog.json")
	} else {
		data, err = os.ReadFile(catalogFile)
	}
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	c, err := parseCatalog(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	s := seeder{
		lg:        lg,
		customers: postgres.NewCustomerRepository(pool),
		products:  postgres.NewProductRepository(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
	}
	return s.seed(ctx, c, apiKey, pepper)
}
