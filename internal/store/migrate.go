package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/fieldsync/internal/models"
)

// schemaVersion records one applied migration in the db_version table.
type schemaVersion struct {
	Version   int    `gorm:"primaryKey"`
	Name      string `gorm:"size:128"`
	AppliedAt time.Time
}

func (schemaVersion) TableName() string { return "db_version" }

// migration is one idempotent schema step, applied exactly once in
// ascending version order.
type migration struct {
	version int
	name    string
	run     func(db *gorm.DB) error
}

var migrations = []migration{
	{
		version: 1,
		name:    "create core tables",
		run: func(db *gorm.DB) error {
			return db.AutoMigrate(models.AllModels()...)
		},
	},
	{
		version: 2,
		name:    "mutation drain order index",
		run: func(db *gorm.DB) error {
			return db.Exec(
				"CREATE INDEX IF NOT EXISTS idx_mutations_drain ON mutations_queue (entity, status, id)",
			).Error
		},
	},
	{
		version: 3,
		name:    "seed sync_meta rows",
		run: func(db *gorm.DB) error {
			for _, entity := range []string{
				"work_orders", "checklist_instances", "checklist_answers", "checklist_attachments",
			} {
				err := db.Exec(
					"INSERT OR IGNORE INTO sync_meta (entity, last_cursor, sync_status, updated_at) VALUES (?, '', 'idle', ?)",
					entity, time.Now(),
				).Error
				if err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// requiredTables is the integrity checklist used after migrations report
// current.
var requiredTables = []string{
	"work_orders",
	"checklist_instances",
	"checklist_answers",
	"checklist_attachments",
	"mutations_queue",
	"sync_meta",
	"execution_sessions",
	"db_version",
}

// Migrate brings the schema up to date, applying any not-yet-recorded
// migrations in ascending version order. Each successful step is recorded in
// db_version before the next one runs. Calling Migrate on a current schema
// is a no-op.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&schemaVersion{}); err != nil {
		return fmt.Errorf("store: create db_version table: %w", err)
	}

	applied := make(map[int]bool)
	var rows []schemaVersion
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("store: read db_version: %w", err)
	}
	for _, r := range rows {
		applied[r.Version] = true
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := m.run(s.db); err != nil {
			return fmt.Errorf("store: migration %d (%s): %w", m.version, m.name, err)
		}
		rec := schemaVersion{Version: m.version, Name: m.name, AppliedAt: time.Now()}
		if err := s.db.Create(&rec).Error; err != nil {
			return fmt.Errorf("store: record migration %d: %w", m.version, err)
		}
		s.log.Info("applied migration", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return nil
}

// SchemaCurrent reports whether every known migration has been recorded.
func (s *Store) SchemaCurrent() (bool, error) {
	if !s.db.Migrator().HasTable("db_version") {
		return false, nil
	}
	var n int64
	if err := s.db.Model(&schemaVersion{}).Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: count db_version: %w", err)
	}
	return n >= int64(len(migrations)), nil
}

// VerifySchema checks that every required table exists. A failure after
// Migrate reported current means the store is corrupt; the only recovery
// path is Reset.
func (s *Store) VerifySchema() error {
	for _, table := range requiredTables {
		if !s.db.Migrator().HasTable(table) {
			return fmt.Errorf("store: schema integrity: missing table %s", table)
		}
	}
	return nil
}

// Reset destroys and recreates the local schema. Partial migration failure
// on an embedded database is not safely resumable in place, so a corrupt
// store is rebuilt from scratch and repopulated by the next full sync.
func (s *Store) Reset() error {
	s.log.Warn("destructive store reset")
	for _, table := range requiredTables {
		if s.db.Migrator().HasTable(table) {
			if err := s.db.Migrator().DropTable(table); err != nil {
				return fmt.Errorf("store: drop %s: %w", table, err)
			}
		}
	}
	return s.Migrate()
}
