package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.txt")
	content := []byte("fixture content")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if got := LoadFixture(t, path); string(got) != string(content) {
		t.Errorf("LoadFixture = %q, want %q", got, content)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	data, err := json.Marshal(map[string]any{"name": "test", "count": 3})
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result map[string]any
	LoadFixtureJSON(t, path, &result)
	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["count"] != float64(3) {
		t.Errorf("expected count=3, got %v", result["count"])
	}
}

func TestWriteAndLoadGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "output.golden")
	content := []byte("expected output")

	// WriteGolden creates intermediate directories.
	WriteGolden(t, path, content)

	if got := LoadGolden(t, path); string(got) != string(content) {
		t.Errorf("LoadGolden = %q, want %q", got, content)
	}
}

func TestSeedCustomers(t *testing.T) {
	db := OpenListingDB(t)
	seeded := SeedCustomers(t, db, 7)

	if len(seeded) != 7 {
		t.Fatalf("seeded %d customers, want 7", len(seeded))
	}

	var count int
	if err := db.NewSelect().Model((*Customer)(nil)).ColumnExpr("COUNT(*)").Scan(context.Background(), &count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 7 {
		t.Errorf("table holds %d rows, want 7", count)
	}

	// Deterministic names, round-robin cities, unique external IDs.
	if seeded[0].Name != "customer-01" || seeded[6].Name != "customer-07" {
		t.Errorf("unexpected seeded names: %s, %s", seeded[0].Name, seeded[6].Name)
	}
	if seeded[0].City != seeded[5].City {
		t.Errorf("cities should repeat every %d rows", len(fixtureCities))
	}
	if seeded[0].ExternalID == seeded[1].ExternalID {
		t.Error("external IDs must be unique")
	}
}
