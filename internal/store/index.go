package store

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SayHoang/plantidentify/internal/errors"
)

// FeedbackRecord is the advisory metadata row written next to each stored
// feedback image. Records are append-only: never updated or deleted here.
type FeedbackRecord struct {
	ID               uint   `gorm:"primaryKey"`
	Timestamp        string `gorm:"uniqueIndex;size:32"` // object name timestamp, the record key
	Label            string `gorm:"index"`               // resolved scientific label
	ObjectPath       string // bucket-relative path of the stored image
	OriginalFilename string // filename as uploaded, may be the placeholder
	CreatedAt        time.Time
}

// Index is the secondary metadata index backed by sqlite.
type Index struct {
	db *gorm.DB
}

// OpenIndex opens (creating if needed) the sqlite metadata index.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Newf("failed to open metadata index: %w", err).
			Category(errors.CategoryDatabase).
			Component("store").
			Context("db_path", dbPath).
			Build()
	}

	if err := db.AutoMigrate(&FeedbackRecord{}); err != nil {
		return nil, errors.Newf("failed to migrate metadata index: %w", err).
			Category(errors.CategoryDatabase).
			Component("store").
			Build()
	}

	return &Index{db: db}, nil
}

// Record appends one feedback record.
func (ix *Index) Record(rec *FeedbackRecord) error {
	if err := ix.db.Create(rec).Error; err != nil {
		return errors.Newf("failed to record feedback metadata: %w", err).
			Category(errors.CategoryDatabase).
			Component("store").
			Context("timestamp", rec.Timestamp).
			Build()
	}
	return nil
}

// Recent returns up to limit records ordered newest first.
func (ix *Index) Recent(limit int) ([]FeedbackRecord, error) {
	var records []FeedbackRecord
	if err := ix.db.Order("created_at desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, errors.Newf("failed to query feedback metadata: %w", err).
			Category(errors.CategoryDatabase).
			Component("store").
			Build()
	}
	return records, nil
}
