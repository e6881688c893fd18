package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

//go:embed schema.sql
var schemaSQL string

const selectInventory = `SELECT store_id, product_id, quantity, last_updated FROM inventory`

// MySQLInventoryStore keeps the inventory ledger in MySQL. Per-key write
// locks are row locks (SELECT ... FOR UPDATE) held for the lifetime of a
// transaction, fronted by an in-process keyed mutex so that local writers on
// a key that does not exist yet queue instead of deadlocking on gap locks.
type MySQLInventoryStore struct {
	db    *sql.DB
	locks *KeyedMutex
}

func NewMySQLInventoryStore(db *sql.DB) *MySQLInventoryStore {
	return &MySQLInventoryStore{db: db, locks: NewKeyedMutex()}
}

// Migrate applies the embedded schema. Safe to call more than once.
func (m *MySQLInventoryStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLInventoryStore) Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := m.db.QueryRowContext(ctx, selectInventory+` WHERE store_id = ? AND product_id = ?`,
		storeID, productID,
	).Scan(&rec.StoreID, &rec.ProductID, &rec.Quantity, &rec.LastUpdated)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &rec, nil
}

func (m *MySQLInventoryStore) GetLocked(ctx context.Context, storeID, productID string) (port.InventoryLock, error) {
	key := domain.Key{StoreID: storeID, ProductID: productID}
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	lock := &mysqlLock{tx: tx, key: key, unlock: unlock, exists: true}
	err = tx.QueryRowContext(ctx, selectInventory+` WHERE store_id = ? AND product_id = ? FOR UPDATE`,
		storeID, productID,
	).Scan(&lock.record.StoreID, &lock.record.ProductID, &lock.record.Quantity, &lock.record.LastUpdated)

	if errors.Is(err, sql.ErrNoRows) {
		lock.exists = false
		lock.record = domain.InventoryRecord{StoreID: storeID, ProductID: productID}
		return lock, nil
	}
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("lock inventory: %w", err)
	}
	return lock, nil
}

func (m *MySQLInventoryStore) FindByStore(ctx context.Context, storeID string) ([]domain.InventoryRecord, error) {
	return m.query(ctx, selectInventory+` WHERE store_id = ? ORDER BY product_id`, storeID)
}

func (m *MySQLInventoryStore) FindByProduct(ctx context.Context, productID string) ([]domain.InventoryRecord, error) {
	return m.query(ctx, selectInventory+` WHERE product_id = ? ORDER BY store_id`, productID)
}

func (m *MySQLInventoryStore) FindLowStock(ctx context.Context, storeID string, threshold int) ([]domain.InventoryRecord, error) {
	return m.query(ctx, selectInventory+` WHERE store_id = ? AND quantity <= ? ORDER BY product_id`, storeID, threshold)
}

func (m *MySQLInventoryStore) query(ctx context.Context, query string, args ...any) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	out := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.StoreID, &rec.ProductID, &rec.Quantity, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return out, nil
}

type mysqlLock struct {
	tx     *sql.Tx
	key    domain.Key
	record domain.InventoryRecord
	exists bool
	unlock func()
	once   sync.Once
}

func (l *mysqlLock) Record() domain.InventoryRecord { return l.record }

func (l *mysqlLock) Exists() bool { return l.exists }

func (l *mysqlLock) Save(ctx context.Context, record domain.InventoryRecord) error {
	if record.Key() != l.key {
		l.Release()
		return errors.New("record key does not match locked key")
	}
	if record.Quantity < 0 {
		l.Release()
		return ErrNegativeQuantity
	}

	_, err := l.tx.ExecContext(ctx, `
		INSERT INTO inventory (store_id, product_id, quantity, last_updated)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), last_updated = VALUES(last_updated)`,
		record.StoreID, record.ProductID, record.Quantity, record.LastUpdated,
	)
	if err != nil {
		l.Release()
		return fmt.Errorf("upsert inventory: %w", err)
	}

	var commitErr error
	l.once.Do(func() {
		commitErr = l.tx.Commit()
		l.unlock()
	})
	if commitErr != nil {
		return fmt.Errorf("commit inventory: %w", commitErr)
	}
	return nil
}

func (l *mysqlLock) Release() {
	l.once.Do(func() {
		_ = l.tx.Rollback()
		l.unlock()
	})
}
