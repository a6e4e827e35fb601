package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Window outcomes recorded at settlement.
const (
	OutcomeUp      = "up"
	OutcomeDown    = "down"
	OutcomeFlat    = "flat"
	OutcomeUnknown = "unknown"
)

// Models

// WindowRecord is the settled result of one Up/Down window: the reference
// price the window opened against, the last spot print seen before
// rollover, and the direction implied by the two.
type WindowRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"index"`
	Asset          string `gorm:"index"`
	Slug           string `gorm:"uniqueIndex"`
	Question       string
	WindowStart    int64 `gorm:"index"`
	WindowEnd      int64
	ReferencePrice decimal.Decimal `gorm:"type:decimal(20,6)"`
	FinalPrice     decimal.Decimal `gorm:"type:decimal(20,6)"`
	FinalUpPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	FinalDownPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	Outcome        string          `gorm:"index"`
	Points         int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SnapshotRecord holds the latest consolidated snapshot per asset and
// window, so a restart within the same window can resume its reference
// price and aligned history instead of starting cold.
type SnapshotRecord struct {
	Asset       string `gorm:"primaryKey"`
	WindowStart int64  `gorm:"primaryKey;autoIncrement:false"`
	SessionID   string
	Payload     string
	UpdatedAt   time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&WindowRecord{}, &SnapshotRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Window operations

// SaveWindow upserts a settled window keyed by slug, so replaying a
// rollover after a restart does not duplicate rows.
func (d *Database) SaveWindow(rec *WindowRecord) error {
	var existing WindowRecord
	err := d.db.Where("slug = ?", rec.Slug).First(&existing).Error
	if err == nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		return d.db.Save(rec).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(rec).Error
	}
	return err
}

func (d *Database) WindowBySlug(slug string) (*WindowRecord, error) {
	var rec WindowRecord
	err := d.db.Where("slug = ?", slug).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Database) RecentWindows(asset string, limit int) ([]WindowRecord, error) {
	var recs []WindowRecord
	err := d.db.Where("asset = ?", asset).Order("window_start DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// Snapshot operations

// SaveSnapshot upserts the latest snapshot payload for (asset, windowStart).
func (d *Database) SaveSnapshot(rec *SnapshotRecord) error {
	rec.UpdatedAt = time.Now()
	return d.db.Save(rec).Error
}

// LatestSnapshot returns the newest stored snapshot for the asset, or
// (nil, nil) when none exists.
func (d *Database) LatestSnapshot(asset string) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := d.db.Where("asset = ?", asset).Order("window_start DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PruneSnapshots drops snapshot rows for windows that started before the
// given epoch-millisecond cutoff.
func (d *Database) PruneSnapshots(asset string, beforeMs int64) error {
	return d.db.Where("asset = ? AND window_start < ?", asset, beforeMs).Delete(&SnapshotRecord{}).Error
}

// Stats operations

func (d *Database) GetStats(asset string) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var windowCount int64
	d.db.Model(&WindowRecord{}).Where("asset = ?", asset).Count(&windowCount)
	stats["settled_windows"] = windowCount

	var upCount int64
	d.db.Model(&WindowRecord{}).Where("asset = ? AND outcome = ?", asset, OutcomeUp).Count(&upCount)
	stats["up_windows"] = upCount

	var downCount int64
	d.db.Model(&WindowRecord{}).Where("asset = ? AND outcome = ?", asset, OutcomeDown).Count(&downCount)
	stats["down_windows"] = downCount

	var flatCount int64
	d.db.Model(&WindowRecord{}).Where("asset = ? AND outcome = ?", asset, OutcomeFlat).Count(&flatCount)
	stats["flat_windows"] = flatCount

	return stats, nil
}
