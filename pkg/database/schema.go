package database

import (
	"database/sql"
	"fmt"
)

// schemaDDL creates the four tables named in §4.2, bit-exact for the
// analysis tooling that reads this database directly. Foreign keys are
// advisory per §4.2: a reactions_log row is never rejected for racing
// ahead of its users row, so no FOREIGN KEY clause is declared — the
// Connection handshake already sequences ensure_user_row before any
// reaction can be logged.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	experiment_group TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reactions_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	is_smiling BOOLEAN NOT NULL DEFAULT 0,
	is_surprised BOOLEAN NOT NULL DEFAULT 0,
	is_concentrating BOOLEAN NOT NULL DEFAULT 0,
	is_hand_up BOOLEAN NOT NULL DEFAULT 0,
	nod_count INTEGER NOT NULL DEFAULT 0,
	sway_vertical_count INTEGER NOT NULL DEFAULT 0,
	sway_horizontal_count INTEGER NOT NULL DEFAULT 0,
	shake_head_count INTEGER NOT NULL DEFAULT 0,
	cheer_count INTEGER NOT NULL DEFAULT 0,
	clap_count INTEGER NOT NULL DEFAULT 0,
	video_time REAL,
	session_id TEXT
);

CREATE TABLE IF NOT EXISTS effects_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	effect_type TEXT NOT NULL,
	intensity REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	session_id TEXT,
	video_time REAL,
	active_users INTEGER
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	video_id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_reactions_log_user_id ON reactions_log(user_id);
CREATE INDEX IF NOT EXISTS idx_reactions_log_timestamp ON reactions_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_effects_log_timestamp ON effects_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`

// EnsureSchema creates the schema idempotently. There is no separate
// migration runner: the schema is fixed and versioned by this file, not by
// incremental migration scripts, per §10.1.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schemaDDL)
	return err
}

// SchemaValidator provides deployment-time verification that the schema
// this process opened actually matches what §4.2 requires.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator wraps an open handle for validation.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies all four required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"users", "reactions_log", "effects_log", "sessions"} {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateIndexes verifies the lookup indexes the debug endpoints' read
// paths rely on.
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range []string{
		"idx_reactions_log_user_id",
		"idx_reactions_log_timestamp",
		"idx_effects_log_timestamp",
		"idx_sessions_user_id",
	} {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateTableStructure verifies reactions_log carries every column §4.2
// names, catching schema drift between this file and the spec.
func (v *SchemaValidator) ValidateTableStructure() error {
	reactionColumns := map[string]string{
		"user_id":               "TEXT",
		"timestamp":             "INTEGER",
		"is_smiling":            "BOOLEAN",
		"is_surprised":          "BOOLEAN",
		"is_concentrating":      "BOOLEAN",
		"is_hand_up":            "BOOLEAN",
		"nod_count":             "INTEGER",
		"sway_vertical_count":   "INTEGER",
		"sway_horizontal_count": "INTEGER",
		"shake_head_count":      "INTEGER",
		"cheer_count":           "INTEGER",
		"clap_count":            "INTEGER",
		"video_time":            "REAL",
		"session_id":            "TEXT",
	}
	if err := v.validateColumns("reactions_log", reactionColumns); err != nil {
		return fmt.Errorf("reactions_log table structure invalid: %w", err)
	}

	effectColumns := map[string]string{
		"timestamp":    "INTEGER",
		"effect_type":  "TEXT",
		"intensity":    "REAL",
		"duration_ms":  "INTEGER",
		"session_id":   "TEXT",
		"video_time":   "REAL",
		"active_users": "INTEGER",
	}
	if err := v.validateColumns("effects_log", effectColumns); err != nil {
		return fmt.Errorf("effects_log table structure invalid: %w", err)
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	return count > 0, err
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return rows.Err()
}
