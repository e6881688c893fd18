package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rl1809/inventory-sync/internal/adapter/messaging"
	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/config"
	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/core/service"
	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	backendMemory = "memory"
	backendMySQL  = "mysql"
	backendRedis  = "redis"
)

type cacheBackend interface {
	port.CacheRepository
	port.IdempotencyRepository
	port.ReconciliationStateRepository
}

type directoryBackend interface {
	port.StoreDirectory
	port.SyncRunRepository
	port.ConflictRepository
}

// app owns every adapter and service of one process.
type app struct {
	cfg *config.Config
	log *zap.Logger

	db         *sql.DB
	rdb        *redis.Client
	mysqlStore *storage.MySQLInventoryStore
	gormStore  *storage.GormAdapter

	store     port.InventoryRepository
	cache     cacheBackend
	directory directoryBackend
	bus       port.EventBus

	mutations  *service.MutationService
	queries    *service.QueryService
	stores     *service.StoreService
	reconciler *service.ReconciliationService
	consumer   *service.EventConsumer
	listener   *service.StoreEventListener
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	strategy, err := domain.ParseStrategy(cfg.Sync.Strategy)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("sync strategy: %w", err)
	}

	a.mutations = service.NewMutationService(a.store, a.cache, a.bus,
		service.WithMutationLogger(log),
		service.WithLowStockThreshold(cfg.Inventory.LowStockThreshold),
	)
	a.queries = service.NewQueryService(a.store, a.cache, a.directory, log)
	a.stores = service.NewStoreService(a.directory, a.bus, log)
	a.reconciler = service.NewReconciliationService(service.ReconciliationConfig{
		CentralStoreID: cfg.Inventory.CentralStoreID,
		Workers:        cfg.Sync.Workers,
		Strategy:       strategy,
		Tolerance:      cfg.Sync.Tolerance,
	}, service.ReconciliationDeps{
		Store:     a.store,
		Directory: a.directory,
		Runs:      a.directory,
		Conflicts: a.directory,
		State:     a.cache,
		Mutator:   a.mutations,
		Logger:    log,
	})
	a.consumer = service.NewEventConsumer(service.EventConsumerConfig{
		CentralStoreID: cfg.Inventory.CentralStoreID,
		Group:          cfg.Consumer.Group,
		AlertGroup:     cfg.Consumer.AlertGroup,
		MaxAttempts:    cfg.Consumer.MaxAttempts,
		ClaimTTL:       cfg.Consumer.ClaimTTL,
	}, a.mutations, a.cache, a.bus, log)
	a.listener = service.NewStoreEventListener(a.reconciler, log)

	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Backend.Storage {
	case backendMemory, "":
		a.store = storage.NewMemoryInventoryStore()
		a.directory = storage.NewMemoryDirectory()
		return nil
	case backendMySQL:
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Backend.Storage)
	}

	db, err := sql.Open("mysql", a.cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.Database.ConnMaxLifetime)
	a.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	a.log.Info("connected to mysql", zap.String("host", a.cfg.Database.Host), zap.String("database", a.cfg.Database.Name))

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open gorm: %w", err)
	}

	a.mysqlStore = storage.NewMySQLInventoryStore(db)
	a.gormStore = storage.NewGormAdapter(gdb)
	a.store = a.mysqlStore
	a.directory = a.gormStore
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	useCache := a.cfg.Backend.Cache == backendRedis
	useBus := a.cfg.Backend.Bus == backendRedis

	if useCache || useBus {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.log.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	}

	switch {
	case useCache:
		a.cache = storage.NewRedisAdapter(a.rdb, a.cfg.Redis.CacheTTL)
	case a.cfg.Backend.Cache == backendMemory || a.cfg.Backend.Cache == "":
		a.cache = storage.NewMemoryCache()
	default:
		return fmt.Errorf("unknown cache backend %q", a.cfg.Backend.Cache)
	}

	switch {
	case useBus:
		a.bus = messaging.NewRedisStreamBus(a.rdb, messaging.RedisStreamConfig{
			Consumer:   a.consumerName(),
			BatchSize:  int64(a.cfg.Consumer.BatchSize),
			RetryDelay: a.cfg.Consumer.RetryDelay,
			MaxLen:     a.cfg.Redis.StreamMaxLen,
		}, a.log)
	case a.cfg.Backend.Bus == backendMemory || a.cfg.Backend.Bus == "":
		a.bus = messaging.NewMemoryBus(
			messaging.WithBatchSize(a.cfg.Consumer.BatchSize),
			messaging.WithRetryDelay(a.cfg.Consumer.RetryDelay),
		)
	default:
		return fmt.Errorf("unknown bus backend %q", a.cfg.Backend.Bus)
	}
	return nil
}

func (a *app) consumerName() string {
	if a.cfg.Consumer.Name != "" {
		return a.cfg.Consumer.Name
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// migrate creates the relational schema. It is a no-op on the memory backend.
func (a *app) migrate(ctx context.Context) error {
	if a.mysqlStore == nil {
		a.log.Info("memory storage selected, nothing to migrate")
		return nil
	}
	if err := a.mysqlStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate inventory: %w", err)
	}
	if err := a.gormStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}
	return nil
}

// ensureCentralStore registers the central warehouse in the directory.
func (a *app) ensureCentralStore(ctx context.Context) error {
	id := a.cfg.Inventory.CentralStoreID
	_, err := a.stores.GetStore(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrStoreNotFound) {
		return err
	}

	_, err = a.stores.CreateStore(ctx, domain.Store{
		ID:     id,
		Name:   "Central Warehouse",
		Active: true,
		Type:   domain.StoreTypeCentralWarehouse,
	})
	if errors.Is(err, domain.ErrStoreAlreadyExists) {
		return nil
	}
	return err
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("close mysql", zap.Error(err))
		}
	}
	a.log.Info("connections closed")
}
