package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/database/migrations"
	"vfs-go/internal/vfs"
)

var _ vfs.Database = (*SQLDatabase)(nil)
var _ vfs.AccessControl = (*SQLDatabase)(nil)

// SQLDatabase implements every store of the publish pipeline on one sqlx
// connection. Dialect differences are limited to the driver, the migration
// set and the placeholder style.
type SQLDatabase struct {
	db      *sqlx.DB
	dialect string
	ids     vfs.IDGenerator
	bus     vfs.EventBus
	logger  vfs.Logger
}

// Option customizes a SQLDatabase.
type Option func(*SQLDatabase)

// WithIDGenerator sets the generator used for new record ids.
func WithIDGenerator(ids vfs.IDGenerator) Option {
	return func(s *SQLDatabase) { s.ids = ids }
}

// WithEventBus sets the bus notified when a deleted resource is purged to
// make room for a new one.
func WithEventBus(bus vfs.EventBus) Option {
	return func(s *SQLDatabase) { s.bus = bus }
}

func WithLogger(logger vfs.Logger) Option {
	return func(s *SQLDatabase) { s.logger = logger }
}

// NewSQLDatabaseFromDB wraps an existing connection. The caller is
// responsible for having configured it for dialect.
func NewSQLDatabaseFromDB(db *sqlx.DB, dialect string, opts ...Option) *SQLDatabase {
	s := &SQLDatabase{
		db:      db,
		dialect: dialect,
		ids:     vfs.UUIDGenerator{},
		bus:     vfs.NopEventBus{},
		logger:  vfs.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies all pending migrations.
func (s *SQLDatabase) Migrate() error {
	return migrations.MigrateUp(s.db.DB, s.dialect)
}

func (s *SQLDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB, s.dialect)
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tools and tests.
func (s *SQLDatabase) DB() *sqlx.DB {
	return s.db
}

// withTx runs fn in a transaction and commits if fn succeeds.
func (s *SQLDatabase) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return &vfs.StoreError{Op: op, Err: err}
}

// tables names the table group of one project.
type tables struct {
	resources   string
	structure   string
	contents    string
	propertydef string
	properties  string
	relations   string
	access      string
}

func tablesFor(project *vfs.Project) tables {
	prefix := "offline_"
	if project.IsOnline() {
		prefix = "online_"
	}
	return tables{
		resources:   prefix + "resources",
		structure:   prefix + "structure",
		contents:    prefix + "contents",
		propertydef: prefix + "propertydef",
		properties:  prefix + "properties",
		relations:   prefix + "relations",
		access:      prefix + "access",
	}
}

func onlineTables() tables  { return tablesFor(vfs.OnlineProject()) }
func offlineTables() tables { return tablesFor(&vfs.Project{}) }

// millis stores times as unix milliseconds; the zero time is 0.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// likePrefix returns a LIKE pattern matching everything below folder.
func likePrefix(folder string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.TrimSuffix(folder, "/")) + "/%"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// placeholders returns n comma separated bind variables.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func exec(ctx context.Context, q sqlx.ExtContext, op, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}

func describe(project *vfs.Project) string {
	if project.IsOnline() {
		return "online"
	}
	return fmt.Sprintf("project %d", project.ID)
}
