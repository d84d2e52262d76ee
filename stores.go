package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coopStore/config"
	"coopStore/events"
	"coopStore/repository"
	"coopStore/services"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// cartStorage is an opened cart backend together with its change watcher.
type cartStorage struct {
	repo    repository.CartRepository
	watcher repository.Watcher
	closers []func() error
	logger  *zap.Logger
}

func (s *cartStorage) Close() {
	s.watcher.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing cart storage", zap.Error(err))
		}
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func openCartStorage(ctx context.Context, c *config.Config, notifier events.Notifier, logger *zap.Logger) (st *cartStorage, err error) {
	st, err = openBackend(ctx, c, notifier, logger)
	if err != nil {
		return nil, err
	}
	st.logger = logger
	return st, nil
}

func openBackend(ctx context.Context, c *config.Config, notifier events.Notifier, logger *zap.Logger) (*cartStorage, error) {
	switch c.Storage.Backend {
	case config.BackendMemory:
		return &cartStorage{repo: repository.NewMemoryCartRepository(), watcher: repository.NoopWatcher{}}, nil

	case config.BackendFile:
		repo, err := repository.NewFileCartRepository(c.Storage.Dir, logger)
		if err != nil {
			return nil, err
		}
		fw, err := repository.NewFileWatcher(repo, notifier, logger)
		if err != nil {
			return nil, err
		}
		return &cartStorage{repo: repo, watcher: fw}, nil

	case config.BackendSqlite:
		if err := ensureParentDir(c.Storage.SqlitePath); err != nil {
			return nil, err
		}
		db, err := sql.Open(config.DriverSqlite, c.Storage.SqlitePath)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewSqliteCartRepository(db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &cartStorage{repo: repo, watcher: repository.NoopWatcher{}, closers: []func() error{db.Close}}, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		})
		pingCtx, cncl := context.WithTimeout(ctx, pingTimeout)
		defer cncl()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis is not working: %w", err)
		}
		opts := repository.RedisCartOptions{
			TTL:     c.RedisTTL(),
			Channel: c.Storage.Redis.Channel,
			Origin:  uuid.NewString(),
		}
		repo, err := repository.NewRedisCartRepository(rdb, ctx, opts, logger)
		if err != nil {
			rdb.Close()
			return nil, err
		}
		var watcher repository.Watcher = repository.NoopWatcher{}
		if opts.Channel != "" {
			if watcher, err = repository.NewRedisWatcher(rdb, opts, notifier, logger); err != nil {
				rdb.Close()
				return nil, err
			}
		}
		return &cartStorage{repo: repo, watcher: watcher, closers: []func() error{rdb.Close}}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
}

func openCatalog(ctx context.Context, c *config.Config) (*sql.DB, error) {
	if c.Catalog.Driver == config.DriverSqlite && !strings.HasPrefix(c.Catalog.DSN, "file:") {
		if err := ensureParentDir(c.Catalog.DSN); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(c.Catalog.Driver, c.Catalog.DSN)
	if err != nil {
		return nil, err
	}
	pingCtx, cncl := context.WithTimeout(ctx, pingTimeout)
	defer cncl()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog database is not reachable: %w", err)
	}
	return db, nil
}

// catalog bundles the repositories backed by the catalog database.
type catalog struct {
	db       *sql.DB
	products repository.ProductRepository
	coupons  repository.CouponRepository
	orders   repository.OrderRepository
}

// openCatalogRepos never fails: without a reachable catalog the cart still works for
// everything except adding items, applying codes and checkout.
func openCatalogRepos(ctx context.Context, c *config.Config, logger *zap.Logger) *catalog {
	cat := &catalog{}
	db, err := openCatalog(ctx, c)
	if err != nil {
		logger.Warn("catalog unavailable", zap.String("driver", c.Catalog.Driver), zap.Error(err))
		return cat
	}
	pr, err := repository.NewProductRepository(db, logger)
	if err != nil {
		logger.Warn("catalog unavailable", zap.Error(err))
		db.Close()
		return cat
	}
	cr, err := repository.NewCouponRepository(db, logger)
	if err != nil {
		logger.Warn("coupons unavailable", zap.Error(err))
	} else {
		cat.coupons = cr
	}
	or, err := repository.NewOrderRepository(db, logger)
	if err != nil {
		logger.Warn("orders unavailable", zap.Error(err))
	} else {
		cat.orders = or
	}
	cat.db, cat.products = db, pr
	return cat
}

func (cat *catalog) Close() {
	if cat.db != nil {
		cat.db.Close()
	}
}

func newCartService(key string, c *config.Config, st *cartStorage, cat *catalog, notifier events.Notifier, logger *zap.Logger) *services.CartService {
	rate := c.TaxRate()
	return services.NewCartService(services.CartParams{
		Key:         key,
		TaxRate:     &rate,
		CartRepo:    st.repo,
		ProductRepo: cat.products,
		CouponRepo:  cat.coupons,
		OrderRepo:   cat.orders,
		Notifier:    notifier,
		Logger:      logger,
	})
}
