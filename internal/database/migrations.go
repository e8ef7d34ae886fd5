package database

import (
	"errors"
	"time"

	"github.com/mandrivka/travelblog/internal/blog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The like counter is denormalized with no reverse index, so a counter that
// drifted (manual document edit, historic bug) cannot be recomputed from a
// source of truth. This one-shot repair clamps anything below zero; more
// than that would need audit data this schema does not keep.
const migrationClampNegativeLikeCounters = "2026-08-12_clamp_negative_like_counters"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClampNegativeLikeCounters, apply: clampNegativeLikeCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func clampNegativeLikeCounters(db *gorm.DB) error {
	return db.Model(&blog.Article{}).
		Where("likes_count < 0").
		Update("likes_count", 0).Error
}
