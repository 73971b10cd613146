package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/books"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// Runtime holds the ledger and the connections it was built on.
type Runtime struct {
	Books   *books.Books
	Pool    *pgxpool.Pool
	Redis   redis.UniversalClient
	Metrics *observability.Metrics

	// Idempotency is set when Redis is enabled.
	Idempotency *shared.IdempotencyStore

	closers []func() error
}

// NewRuntime wires the ledger for cfg: the store driver, the optional Redis
// lock and report cache, audit and metrics.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Runtime, error) {
	rt := &Runtime{Metrics: metrics}
	opts := books.Options{
		LedgerID: cfg.LedgerID,
		Chart:    accounting.DefaultChart(),
		Metrics:  metrics,
		Logger:   logger,
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if err := db.EnsureSchema(ctx, pool); err != nil {
			_ = rt.Close()
			return nil, err
		}
		opts.UnitOfWork = books.NewPostgresUnitOfWork(pool, cfg.LedgerID)
		opts.Audit = shared.NewAuditLogger(pool, cfg.LedgerID)
	default:
		opts.UnitOfWork = books.NewMemoryUnitOfWork(accounting.NewMemoryStore(), inventory.NewMemoryStore())
		opts.Audit = shared.NewMemoryAuditLog()
	}

	if cfg.RedisEnabled {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, client.Close)
		opts.Locker = shared.NewLedgerLocker(client, cfg.LedgerLockTTL, cfg.LedgerLockWait)
		opts.Cache = cache.NewVersioned(client, "books", cfg.ReportCacheTTL)
		rt.Idempotency = shared.NewIdempotencyStore(client, cfg.LedgerID, cfg.IdempotencyTTL)
	}

	b, err := books.New(opts)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("app: build ledger: %w", err)
	}
	rt.Books = b
	logger.Info("ledger ready",
		slog.String("ledger", cfg.LedgerID),
		slog.String("store", cfg.StoreDriver),
		slog.Bool("redis", cfg.RedisEnabled),
	)
	return rt, nil
}

// Close releases connections in reverse order of creation.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
