package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trade_ingest/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ Sink = (*Storage)(nil)

// Storage persists trades into a relational trades table
type Storage struct {
	db *gorm.DB
}

// NewSQLite opens (or creates) a SQLite database at path
func NewSQLite(path string) (*Storage, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		// Ensure directory exists
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create DB directory: %w", err)
			}
		}
	}

	// Connect to SQLite (Pure Go)
	return newStorage(sqlite.Open(path))
}

// NewPostgres connects to PostgreSQL using a postgres:// URL or key=value DSN
func NewPostgres(dsn string) (*Storage, error) {
	return newStorage(postgres.Open(dsn))
}

func newStorage(dialector gorm.Dialector) (*Storage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Insert writes one trade row
func (s *Storage) Insert(ctx context.Context, ev domain.TradeEvent) error {
	if err := s.db.WithContext(ctx).Create(domain.NewTradeRecord(ev)).Error; err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
