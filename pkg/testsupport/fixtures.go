// Package testsupport provides fixture helpers shared by the engine's
// test suites: JSON/golden file loading and a seeded sqlite database
// for listing tests.
package testsupport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and
// unmarshals it into dest.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadGolden loads expected test output from a golden file.
func LoadGolden(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load golden file from %s: %v", path, err)
	}
	return data
}

// WriteGolden writes test output to a golden file. Typically only
// called when updating golden files.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write golden file %s: %v", path, err)
	}
}

// Customer is the fixture entity used across listing tests.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID         int64  `bun:"id,pk,autoincrement"`
	ExternalID string `bun:"external_id"`
	Name       string `bun:"name"`
	Email      string `bun:"email"`
	City       string `bun:"city"`
	Status     string `bun:"status"`
}

// OpenListingDB opens an in-memory sqlite database wrapped by bun and
// creates the customers fixture table.
func OpenListingDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", "file::memory:?cache=shared&_fk=1")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	if _, err := db.NewCreateTable().Model((*Customer)(nil)).Exec(context.Background()); err != nil {
		t.Fatalf("failed to create customers table: %v", err)
	}
	return db
}

var fixtureCities = []string{"Lisbon", "Porto", "Madrid", "Berlin", "Austin"}

// SeedCustomers inserts n deterministic active customers. Names sort
// in index order (customer-01, customer-02, ...), every fifth row
// lives in a different city, and external IDs are random UUIDs.
func SeedCustomers(t *testing.T, db *bun.DB, n int) []Customer {
	t.Helper()

	customers := make([]Customer, 0, n)
	for i := 1; i <= n; i++ {
		customers = append(customers, Customer{
			ExternalID: uuid.New().String(),
			Name:       fmt.Sprintf("customer-%02d", i),
			Email:      fmt.Sprintf("customer-%02d@example.com", i),
			City:       fixtureCities[(i-1)%len(fixtureCities)],
			Status:     "active",
		})
	}

	if _, err := db.NewInsert().Model(&customers).Exec(context.Background()); err != nil {
		t.Fatalf("failed to seed customers: %v", err)
	}
	return customers
}
