package database

import (
	"path/filepath"
	"testing"
)

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig should not return nil")
	}
	if config.DatabasePath != "./data/audiencehub.db" {
		t.Errorf("DatabasePath = %q, want ./data/audiencehub.db", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", config.MaxConnections)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	tempDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(tempDir, "test.db")

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	validator := NewSchemaValidator(db)
	if err := validator.ValidateTablesExist(); err != nil {
		t.Errorf("ValidateTablesExist() error = %v", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		t.Errorf("ValidateIndexes() error = %v", err)
	}
}

func TestOpen_IdempotentOnReopen(t *testing.T) {
	tempDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(tempDir, "test.db")

	db1, err := Open(cfg)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	_ = db1.Close()

	db2, err := Open(cfg)
	if err != nil {
		t.Fatalf("second Open() on an existing file error = %v", err)
	}
	defer func() { _ = db2.Close() }()
}
