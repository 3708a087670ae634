package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite is the long-lived scope backed by a single-table SQLite database.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database at path. Use ":memory:" in tests.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("Failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("Failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db, logger: logger}, nil
}

// Get returns the stored value and whether it exists.
func (s *SQLite) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logger.Debug("kv read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, true
}

// Set writes one key. Failures are swallowed (debug log only).
func (s *SQLite) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, value,
	)
	if err != nil {
		s.logger.Debug("kv write failed", zap.String("key", key), zap.Error(err))
	}
}

// SetMany writes all pairs in one transaction.
func (s *SQLite) SetMany(pairs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Debug("kv batch write failed", zap.Error(err))
		return
	}
	for key, value := range pairs {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			key, value,
		); err != nil {
			s.logger.Debug("kv batch write failed", zap.String("key", key), zap.Error(err))
			tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Debug("kv batch commit failed", zap.Error(err))
	}
}

// Delete removes a key. Missing keys are not an error.
func (s *SQLite) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		s.logger.Debug("kv delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
