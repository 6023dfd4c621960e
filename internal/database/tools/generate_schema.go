//go:build ignore

// generate_schema applies the sqlite migrations to an in-memory database
// and writes the resulting tables and indexes to docs/schema.sql, so the
// layout can be reviewed without reading every migration.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"vfs-go/internal/database"
	"vfs-go/internal/database/migrations"
)

func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db.DB, migrations.DialectSQLite); err != nil {
		fmt.Fprintf(os.Stderr, "migrating: %v\n", err)
		os.Exit(1)
	}

	schema, err := dumpSchema(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dumping schema: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join("docs", "schema.sql")
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", filepath.Dir(outPath), err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, []byte(schema), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", outPath)
}

// dumpSchema lists every CREATE statement except sqlite internals and the
// migration bookkeeping table, tables before indexes.
func dumpSchema(db *sqlx.DB) (string, error) {
	var stmts []string
	err := db.Select(&stmts, `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}

	var b strings.Builder
	b.WriteString("-- Generated from internal/database/migrations/files/sqlite. Do not edit.\n\n")
	for _, stmt := range stmts {
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
