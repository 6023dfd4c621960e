package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/database/migrations"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewPostgresDatabase connects to PostgreSQL using dsn.
func NewPostgresDatabase(dsn string, opts ...Option) (*SQLDatabase, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewSQLDatabaseFromDB(db, migrations.DialectPostgres, opts...), nil
}
