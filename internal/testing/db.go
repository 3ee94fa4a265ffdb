// Package testing provides test helpers shared across the forecast service packages.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/aristath/opportunity-forecast/internal/database"
)

// NewTestDB creates a migrated sqlite database in a temporary directory.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and is also registered with t.Cleanup.
//
// Supported schema names:
//   - "audit" - applies audit_schema.sql with the ledger profile
//   - "forecasts" - applies forecasts_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	profile := database.ProfileStandard
	if name == database.NameAudit {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		_ = db.Close()
	}
	t.Cleanup(cleanup)

	return db, cleanup
}

// GetRawConnection returns the underlying *sql.DB
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}
