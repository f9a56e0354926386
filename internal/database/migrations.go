package database

import (
	"log"

	"gorm.io/gorm"
)

const legacyCacheTable = "translation_caches_legacy"

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	if err := backfillUsageCount(db); err != nil {
		return err
	}
	return nil
}

// PrepareLegacySchema moves a pre-fingerprint cache table out of the way before AutoMigrate.
// Older builds keyed translation_caches on source_hash with a hit_count column; those rows
// cannot satisfy the new NOT NULL fingerprint index, so they are parked for manual inspection.
// Safe to run multiple times.
func PrepareLegacySchema(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable("translation_caches") || !m.HasColumn("translation_caches", "source_hash") {
		return nil
	}

	if m.HasTable(legacyCacheTable) {
		log.Printf("Legacy cache table %s already exists, dropping stale translation_caches", legacyCacheTable)
		return m.DropTable("translation_caches")
	}

	log.Printf("Migrating translation_caches: moving legacy layout to %s", legacyCacheTable)
	return m.RenameTable("translation_caches", legacyCacheTable)
}

// backfillUsageCount repairs rows written before usage_count had a default.
// This only touches rows where usage_count is NULL or zero.
func backfillUsageCount(db *gorm.DB) error {
	result := db.Exec(`UPDATE translation_caches SET usage_count = 1 WHERE usage_count IS NULL OR usage_count < 1`)
	if result.Error != nil {
		log.Printf("Warning: failed to backfill usage_count: %v", result.Error)
		return nil
	}
	if result.RowsAffected > 0 {
		log.Printf("Backfilled usage_count on %d translation_caches rows", result.RowsAffected)
	}
	return nil
}
