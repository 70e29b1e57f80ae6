package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSchemaValidator_ValidateTablesExist(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on an empty database")
	}

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("ValidateTablesExist() error = %v after EnsureSchema", err)
	}
}

func TestSchemaValidator_ValidateIndexes(t *testing.T) {
	db := openTestDB(t)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	validator := NewSchemaValidator(db)
	if err := validator.ValidateIndexes(); err != nil {
		t.Errorf("ValidateIndexes() error = %v", err)
	}
}

func TestSchemaValidator_ValidateTableStructure(t *testing.T) {
	db := openTestDB(t)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	validator := NewSchemaValidator(db)
	if err := validator.ValidateTableStructure(); err != nil {
		t.Errorf("ValidateTableStructure() error = %v", err)
	}
}

func TestEnsureSchema_IsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("first EnsureSchema() error = %v", err)
	}
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("second EnsureSchema() error = %v", err)
	}
}
