// Package store wraps the embedded SQLite database behind a narrow CRUD
// facade. All persistence in the sync core goes through a Store; nothing
// else holds the gorm handle.
package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by FindOne/FindByID when no row matches.
var ErrNotFound = errors.New("store: record not found")

// Store is a handle to the local embedded database.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The app never runs two writes concurrently; a single connection also
	// keeps in-memory databases coherent across the pool.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db, log: log}, nil
}

// OpenMemory opens a throwaway in-memory database, used by tests.
func OpenMemory(log *zap.Logger) (*Store, error) {
	return Open(":memory:", log)
}

// DB exposes the underlying gorm handle for clause-level operations
// (upserts, locking) that the facade does not model.
func (s *Store) DB() *gorm.DB { return s.db }

// FindAll loads every row matching the optional conditions into dest.
func (s *Store) FindAll(dest interface{}, conds ...interface{}) error {
	if err := s.db.Find(dest, conds...).Error; err != nil {
		return fmt.Errorf("store: find all: %w", err)
	}
	return nil
}

// FindOne loads the first row matching query into dest.
func (s *Store) FindOne(dest interface{}, query interface{}, args ...interface{}) error {
	err := s.db.Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: find one: %w", err)
	}
	return nil
}

// FindByID loads the row with the given primary key into dest.
func (s *Store) FindByID(dest interface{}, id interface{}) error {
	err := s.db.First(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: find by id %v: %w", id, err)
	}
	return nil
}

// Insert creates a new row.
func (s *Store) Insert(value interface{}) error {
	if err := s.db.Create(value).Error; err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Upsert inserts the row or, on a primary-key conflict, overwrites every
// column with the incoming values.
func (s *Store) Upsert(value interface{}) error {
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error; err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return nil
}

// Update applies the given column updates to the row with the given id.
func (s *Store) Update(model interface{}, id interface{}, updates map[string]interface{}) error {
	if err := s.db.Model(model).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("store: update id %v: %w", id, err)
	}
	return nil
}

// UpdateWhere applies the given column updates to every row matching query.
func (s *Store) UpdateWhere(model interface{}, updates map[string]interface{}, query interface{}, args ...interface{}) error {
	if err := s.db.Model(model).Where(query, args...).Updates(updates).Error; err != nil {
		return fmt.Errorf("store: update where: %w", err)
	}
	return nil
}

// Remove deletes rows matching the conditions.
func (s *Store) Remove(model interface{}, query interface{}, args ...interface{}) error {
	if err := s.db.Where(query, args...).Delete(model).Error; err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	return nil
}

// Count returns the number of rows matching query.
func (s *Store) Count(model interface{}, query interface{}, args ...interface{}) (int64, error) {
	var n int64
	tx := s.db.Model(model)
	if query != nil {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// RawQuery runs a raw SQL query and scans the rows into dest.
func (s *Store) RawQuery(dest interface{}, sql string, args ...interface{}) error {
	if err := s.db.Raw(sql, args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("store: raw query: %w", err)
	}
	return nil
}

// Exec runs a raw SQL statement.
func (s *Store) Exec(sql string, args ...interface{}) error {
	if err := s.db.Exec(sql, args...).Error; err != nil {
		return fmt.Errorf("store: exec: %w", err)
	}
	return nil
}

// Transaction runs fn inside one database transaction; fn receives a Store
// bound to the transaction. A returned error rolls everything back.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}
