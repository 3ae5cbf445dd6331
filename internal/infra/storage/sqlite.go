package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"liquidity_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite persistence layer
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
// An empty path resolves to the per-user data directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		dbPath, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.AssetInfo{},
		&bufferRow{},
		&observationRow{},
		&precommitRow{},
		&orderbookRow{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LiquidityGo", "data", "pool.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates or updates asset precision metadata
func (s *Storage) UpsertAsset(asset *domain.AssetInfo) error {
	return s.db.Save(asset).Error
}

// GetAsset retrieves asset metadata by denom
func (s *Storage) GetAsset(denom string) (*domain.AssetInfo, error) {
	var asset domain.AssetInfo
	err := s.db.First(&asset, "denom = ?", denom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &asset, err
}

// GetAllAssets retrieves all assets
func (s *Storage) GetAllAssets() ([]domain.AssetInfo, error) {
	var assets []domain.AssetInfo
	err := s.db.Find(&assets).Error
	return assets, err
}

// DeleteAsset deletes an asset from the database
func (s *Storage) DeleteAsset(denom string) error {
	return s.db.Where("denom = ?", denom).Delete(&domain.AssetInfo{}).Error
}

// Precision implements domain.PrecisionResolver over the asset table.
func (s *Storage) Precision(denom string) (uint8, error) {
	asset, err := s.GetAsset(denom)
	if err != nil {
		return 0, domain.NewStorageError("get asset", err)
	}
	if asset == nil || !asset.IsActive {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownAsset, denom)
	}
	return asset.Decimals, nil
}

// ======================================================================================
// Pool State Operations
// ======================================================================================

type bufferRow struct {
	PoolID    string `gorm:"primaryKey"`
	Capacity  int
	Head      int
	Length    int
	UpdatedAt time.Time
}

func (bufferRow) TableName() string { return "observation_buffers" }

type observationRow struct {
	PoolID    string          `gorm:"primaryKey"`
	Slot      int             `gorm:"primaryKey;autoIncrement:false"`
	Timestamp uint64          `gorm:"column:ts"`
	Price     decimal.Decimal `gorm:"type:text"`
	PriceSMA  decimal.Decimal `gorm:"column:price_sma;type:text"`
}

func (observationRow) TableName() string { return "observations" }

type precommitRow struct {
	PoolID      string `gorm:"primaryKey"`
	BaseAmount  string
	QuoteAmount string
	Timestamp   uint64 `gorm:"column:precommit_ts"`
}

func (precommitRow) TableName() string { return "precommit_observations" }

type orderbookRow struct {
	PoolID         string `gorm:"primaryKey"`
	MarketID       string
	SubaccountID   string
	MinTradesToAvg uint32
	Ready          bool
	Enabled        bool
	UpdatedAt      time.Time
}

func (orderbookRow) TableName() string { return "orderbook_states" }

// PoolStore returns the transactional state handle of one pool.
func (s *Storage) PoolStore(poolID string) domain.PoolStore {
	return &sqlitePool{db: s.db, poolID: poolID}
}

type sqlitePool struct {
	db     *gorm.DB
	poolID string
}

func (p *sqlitePool) Init(ctx context.Context, capacity int, ob domain.OrderbookState) error {
	if err := checkInit(capacity, ob); err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meta bufferRow
		res := tx.Where("pool_id = ?", p.poolID).Limit(1).Find(&meta)
		if res.Error != nil {
			return domain.NewStorageError("init", res.Error)
		}
		if res.RowsAffected > 0 {
			if meta.Capacity != capacity {
				return layoutChanged(meta.Capacity, capacity)
			}
			return nil
		}

		meta = bufferRow{PoolID: p.poolID, Capacity: capacity, Head: capacity - 1}
		if err := tx.Create(&meta).Error; err != nil {
			return domain.NewStorageError("init", err)
		}
		row := toOrderbookRow(p.poolID, &ob)
		if err := tx.Create(&row).Error; err != nil {
			return domain.NewStorageError("init", err)
		}
		return nil
	})
}

func (p *sqlitePool) Update(ctx context.Context, fn func(domain.PoolState) error) error {
	var fnErr error
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := p.load(tx, false)
		if err != nil {
			fnErr = err
			return err
		}
		fnErr = fn(st)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return domain.NewStorageError("commit", err)
	}
	return err
}

// View reads inside a transaction so every read sees the same committed state.
// The transaction is always rolled back.
func (p *sqlitePool) View(ctx context.Context, fn func(domain.PoolState) error) error {
	tx := p.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return domain.NewStorageError("view", tx.Error)
	}
	defer tx.Rollback()

	st, err := p.load(tx, true)
	if err != nil {
		return err
	}
	return fn(st)
}

func (p *sqlitePool) load(tx *gorm.DB, readOnly bool) (*sqliteState, error) {
	var meta bufferRow
	res := tx.Where("pool_id = ?", p.poolID).Limit(1).Find(&meta)
	if res.Error != nil {
		return nil, domain.NewStorageError("load", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notInitialized(p.poolID)
	}
	return &sqliteState{tx: tx, poolID: p.poolID, meta: meta, readOnly: readOnly}, nil
}

type sqliteState struct {
	tx       *gorm.DB
	poolID   string
	meta     bufferRow
	readOnly bool
}

func (s *sqliteState) Capacity() int { return s.meta.Capacity }
func (s *sqliteState) Len() int      { return s.meta.Length }
func (s *sqliteState) Head() int     { return s.meta.Head }

func (s *sqliteState) ReadLast() (*domain.Observation, error) {
	if s.meta.Length == 0 {
		return nil, nil
	}
	return s.ReadAt(s.meta.Head)
}

func (s *sqliteState) ReadAt(index int) (*domain.Observation, error) {
	var row observationRow
	res := s.tx.Where("pool_id = ? AND slot = ?", s.poolID, slotOf(index, s.meta.Capacity)).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, domain.NewStorageError("read observation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &domain.Observation{Timestamp: row.Timestamp, Price: row.Price, PriceSMA: row.PriceSMA}, nil
}

func (s *sqliteState) Push(obs domain.Observation) error {
	if s.readOnly {
		return domain.NewStorageError("push", errReadOnly)
	}
	meta := s.meta
	meta.Head = slotOf(meta.Head+1, meta.Capacity)
	meta.Length = nextLen(meta.Length, meta.Capacity)

	row := observationRow{
		PoolID:    s.poolID,
		Slot:      meta.Head,
		Timestamp: obs.Timestamp,
		Price:     obs.Price,
		PriceSMA:  obs.PriceSMA,
	}
	if err := upsert(s.tx, &row); err != nil {
		return domain.NewStorageError("push", err)
	}
	if err := upsert(s.tx, &meta); err != nil {
		return domain.NewStorageError("push", err)
	}
	s.meta = meta
	return nil
}

func (s *sqliteState) LoadPrecommit() (*domain.PrecommitObservation, error) {
	var row precommitRow
	res := s.tx.Where("pool_id = ?", s.poolID).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, domain.NewStorageError("load precommit", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	base, err := uint256.FromDecimal(row.BaseAmount)
	if err != nil {
		return nil, domain.NewStorageError("load precommit", err)
	}
	quote, err := uint256.FromDecimal(row.QuoteAmount)
	if err != nil {
		return nil, domain.NewStorageError("load precommit", err)
	}
	return &domain.PrecommitObservation{BaseAmount: base, QuoteAmount: quote, Timestamp: row.Timestamp}, nil
}

func (s *sqliteState) SavePrecommit(p domain.PrecommitObservation) error {
	if s.readOnly {
		return domain.NewStorageError("save precommit", errReadOnly)
	}
	p = p.Clone()
	row := precommitRow{
		PoolID:      s.poolID,
		BaseAmount:  p.BaseAmount.Dec(),
		QuoteAmount: p.QuoteAmount.Dec(),
		Timestamp:   p.Timestamp,
	}
	return domain.NewStorageError("save precommit", upsert(s.tx, &row))
}

func (s *sqliteState) LoadOrderbook() (*domain.OrderbookState, error) {
	var row orderbookRow
	err := s.tx.First(&row, "pool_id = ?", s.poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notInitialized(s.poolID)
	}
	if err != nil {
		return nil, domain.NewStorageError("load orderbook", err)
	}
	return &domain.OrderbookState{
		MarketID:       row.MarketID,
		SubaccountID:   row.SubaccountID,
		MinTradesToAvg: row.MinTradesToAvg,
		Ready:          row.Ready,
		Enabled:        row.Enabled,
	}, nil
}

func (s *sqliteState) SaveOrderbook(ob *domain.OrderbookState) error {
	if s.readOnly {
		return domain.NewStorageError("save orderbook", errReadOnly)
	}
	row := toOrderbookRow(s.poolID, ob)
	return domain.NewStorageError("save orderbook", upsert(s.tx, &row))
}

// upsert writes every column, replacing an existing row with the same primary key.
func upsert(tx *gorm.DB, row interface{}) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func toOrderbookRow(poolID string, ob *domain.OrderbookState) orderbookRow {
	return orderbookRow{
		PoolID:         poolID,
		MarketID:       ob.MarketID,
		SubaccountID:   ob.SubaccountID,
		MinTradesToAvg: ob.MinTradesToAvg,
		Ready:          ob.Ready,
		Enabled:        ob.Enabled,
	}
}
