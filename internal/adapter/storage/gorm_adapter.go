package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

type storeModel struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:255"`
	Location string `gorm:"size:255"`
	Active   bool   `gorm:"index"`
	Type     string `gorm:"size:32"`
}

func (storeModel) TableName() string { return "stores" }

type syncRunModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	Scope          string `gorm:"size:64;index"`
	Kind           string `gorm:"size:16"`
	Status         string `gorm:"size:16"`
	StartedAt      time.Time
	EndedAt        *time.Time
	ItemsProcessed int
	SuccessCount   int
	FailureCount   int
	ConflictCount  int
	ErrorMessage   string `gorm:"type:text"`
}

func (syncRunModel) TableName() string { return "sync_runs" }

type conflictModel struct {
	ID                   string `gorm:"primaryKey;size:36"`
	StoreID              string `gorm:"size:64;index:idx_conflict_key"`
	ProductID            string `gorm:"size:128;index:idx_conflict_key"`
	StoreQuantity        int
	CentralQuantity      int
	StoreTimestamp       time.Time
	CentralTimestamp     time.Time
	DetectedAt           time.Time
	Resolved             bool `gorm:"index"`
	RequiresManualReview bool
	Strategy             string `gorm:"size:32"`
	Outcome              string `gorm:"size:32"`
	ResolvedAt           *time.Time
	Notes                string `gorm:"type:text"`
}

func (conflictModel) TableName() string { return "inventory_conflicts" }

// GormAdapter persists the store directory and reconciliation history.
type GormAdapter struct {
	db *gorm.DB
}

func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

func (g *GormAdapter) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&storeModel{}, &syncRunModel{}, &conflictModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (g *GormAdapter) ListActiveStoreIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).Model(&storeModel{}).
		Where("active = ?", true).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list active stores: %w", err)
	}
	return ids, nil
}

func (g *GormAdapter) ListStores(ctx context.Context) ([]domain.Store, error) {
	var models []storeModel
	if err := g.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	stores := make([]domain.Store, 0, len(models))
	for _, m := range models {
		stores = append(stores, m.toDomain())
	}
	return stores, nil
}

func (g *GormAdapter) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	var m storeModel
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}

	s := m.toDomain()
	return &s, nil
}

func (g *GormAdapter) CreateStore(ctx context.Context, s domain.Store) error {
	m := storeModel{ID: s.ID, Name: s.Name, Location: s.Location, Active: s.Active, Type: string(s.Type)}
	if err := g.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

func (g *GormAdapter) DeleteStore(ctx context.Context, id string) error {
	result := g.db.WithContext(ctx).Where("id = ?", id).Delete(&storeModel{})
	if result.Error != nil {
		return fmt.Errorf("delete store: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrStoreNotFound
	}
	return nil
}

func (g *GormAdapter) SaveRun(ctx context.Context, run domain.SyncRun) error {
	m := syncRunModel{
		ID:             run.ID,
		Scope:          run.Scope,
		Kind:           string(run.Kind),
		Status:         string(run.Status),
		StartedAt:      run.StartedAt,
		ItemsProcessed: run.ItemsProcessed,
		SuccessCount:   run.SuccessCount,
		FailureCount:   run.FailureCount,
		ConflictCount:  run.ConflictCount,
		ErrorMessage:   run.ErrorMessage,
	}
	if !run.EndedAt.IsZero() {
		ended := run.EndedAt
		m.EndedAt = &ended
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}
	return nil
}

func (g *GormAdapter) GetRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	var m syncRunModel
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}

	run := domain.SyncRun{
		ID:             m.ID,
		Scope:          m.Scope,
		Kind:           domain.SyncKind(m.Kind),
		Status:         domain.SyncStatus(m.Status),
		StartedAt:      m.StartedAt,
		ItemsProcessed: m.ItemsProcessed,
		SuccessCount:   m.SuccessCount,
		FailureCount:   m.FailureCount,
		ConflictCount:  m.ConflictCount,
		ErrorMessage:   m.ErrorMessage,
	}
	if m.EndedAt != nil {
		run.EndedAt = *m.EndedAt
	}
	return &run, nil
}

func (g *GormAdapter) SaveConflict(ctx context.Context, c domain.InventoryConflict) error {
	m := conflictModel{
		ID:                   c.ID,
		StoreID:              c.StoreID,
		ProductID:            c.ProductID,
		StoreQuantity:        c.StoreQuantity,
		CentralQuantity:      c.CentralQuantity,
		StoreTimestamp:       c.StoreTimestamp,
		CentralTimestamp:     c.CentralTimestamp,
		DetectedAt:           c.DetectedAt,
		Resolved:             c.Resolved,
		RequiresManualReview: c.RequiresManualReview,
		Strategy:             string(c.Strategy),
		Outcome:              string(c.Outcome),
		ResolvedAt:           c.ResolvedAt,
		Notes:                c.Notes,
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save conflict: %w", err)
	}
	return nil
}

func (g *GormAdapter) GetConflict(ctx context.Context, id string) (*domain.InventoryConflict, error) {
	var m conflictModel
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}

	c := m.toDomain()
	return &c, nil
}

func (g *GormAdapter) ListConflicts(ctx context.Context, openOnly bool) ([]domain.InventoryConflict, error) {
	q := g.db.WithContext(ctx).Order("detected_at")
	if openOnly {
		q = q.Where("resolved = ?", false)
	}

	var models []conflictModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	out := make([]domain.InventoryConflict, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (g *GormAdapter) FindOpenConflicts(ctx context.Context, storeID, productID string) ([]domain.InventoryConflict, error) {
	var models []conflictModel
	err := g.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ? AND resolved = ?", storeID, productID, false).
		Order("detected_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("find open conflicts: %w", err)
	}

	out := make([]domain.InventoryConflict, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (m storeModel) toDomain() domain.Store {
	return domain.Store{
		ID:       m.ID,
		Name:     m.Name,
		Location: m.Location,
		Active:   m.Active,
		Type:     domain.StoreType(m.Type),
	}
}

func (m conflictModel) toDomain() domain.InventoryConflict {
	return domain.InventoryConflict{
		ID:                   m.ID,
		StoreID:              m.StoreID,
		ProductID:            m.ProductID,
		StoreQuantity:        m.StoreQuantity,
		CentralQuantity:      m.CentralQuantity,
		StoreTimestamp:       m.StoreTimestamp,
		CentralTimestamp:     m.CentralTimestamp,
		DetectedAt:           m.DetectedAt,
		Resolved:             m.Resolved,
		RequiresManualReview: m.RequiresManualReview,
		Strategy:             domain.ConflictResolutionStrategy(m.Strategy),
		Outcome:              domain.OutcomeKind(m.Outcome),
		ResolvedAt:           m.ResolvedAt,
		Notes:                m.Notes,
	}
}
