package database

import (
	"fmt"
	"os"
	"path/filepath"

	"vfs-go/internal/config"
)

// NewDatabaseFromConfig opens the database selected by cfg.Type. Memory
// databases are migrated on open since nothing else could have done so.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, opts ...Option) (*SQLDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "vfs.db"), opts...)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", opts...)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return db, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		return NewPostgresDatabase(cfg.DSN, opts...)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
