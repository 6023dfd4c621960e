package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"offline_resources", "offline_structure", "offline_contents", "offline_propertydef",
		"offline_properties", "offline_relations", "offline_access",
		"online_resources", "online_structure", "online_contents", "online_propertydef",
		"online_properties", "online_relations", "online_access",
		"projects", "project_resources", "backup_resources", "backup_contents",
		"backup_propertydef", "backup_properties", "backup_projects", "publish_history",
		"publish_sequence", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestMigrateUp_SeedsRootAndOnlineProject(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"offline_structure", "online_structure"} {
		var id string
		if err := db.QueryRow("SELECT structure_id FROM "+table+" WHERE resource_path = '/'").Scan(&id); err != nil {
			t.Errorf("root folder missing in %s: %v", table, err)
		}
	}

	var name string
	if err := db.QueryRow("SELECT project_name FROM projects WHERE project_id = 1").Scan(&name); err != nil {
		t.Fatalf("online project missing: %v", err)
	}
	if name != "Online" {
		t.Errorf("online project name = %q, want %q", name, "Online")
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := CheckDBMigrationStatus(db, DialectSQLite)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db, DialectSQLite); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckDBMigrationStatus(db, DialectSQLite); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestMigrateUp_UnknownDialect(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "oracle"); err == nil {
		t.Error("MigrateUp() expected error for unknown dialect, got nil")
	}
}

func TestSchema_StructurePathUnique(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO offline_structure (structure_id, resource_id, resource_path) VALUES ('s-1', 'r-1', '/a')")
	if err != nil {
		t.Fatalf("Failed to insert first structure row: %v", err)
	}
	_, err = db.Exec("INSERT INTO offline_structure (structure_id, resource_id, resource_path) VALUES ('s-2', 'r-2', '/a')")
	if err == nil {
		t.Error("Expected unique constraint violation for duplicate path, but insert succeeded")
	}
}

func TestSchema_ProjectResourcesCascade(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, DialectSQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO project_resources (project_id, resource_path) VALUES (42, '/a/')")
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	return db
}
