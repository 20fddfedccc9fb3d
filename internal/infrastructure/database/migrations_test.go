package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var testSchemaFS embed.FS

// useTestMigrations points the package at the testdata schema for the
// duration of one test.
func useTestMigrations(t *testing.T, fsys embed.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = fsys
	MigrationsDir = dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n > 0
}

func TestMigrateAppliesAndIsIdempotent(t *testing.T) {
	useTestMigrations(t, testSchemaFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_plants") {
		t.Fatal("test_plants table missing after migrate")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 1 and 0", len(applied), len(pending))
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	applied, _, _ = db.GetMigrationStatus(ctx)
	if len(applied) != 1 {
		t.Errorf("re-running migrate changed applied count to %d", len(applied))
	}
}

func TestMigrateDownRollsBackLatest(t *testing.T) {
	useTestMigrations(t, testSchemaFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_plants") {
		t.Error("test_plants should be gone after rollback")
	}
	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}
}

func TestMigrateWithEmptyFS(t *testing.T) {
	var empty embed.FS
	useTestMigrations(t, empty, ".")
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no embedded schema error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260901_090000_initial_schema.up.sql", "20260901_090000", true, true},
		{"20260901_090000_initial_schema.down.sql", "20260901_090000", false, true},
		{"readme.txt", "", false, false},
		{"20260901_090000_initial_schema.sql", "", false, false},
		{"invalid.up.sql", "", false, false},
	}
	for _, tt := range tests {
		version, isUp, ok := parseMigrationFilename(tt.filename)
		if ok != tt.wantOk || version != tt.wantVersion || isUp != tt.wantIsUp {
			t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.filename, version, isUp, ok, tt.wantVersion, tt.wantIsUp, tt.wantOk)
		}
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260901_090000_initial_schema.up.sql", "initial_schema"},
		{"20260901_090000_initial_schema.down.sql", "initial_schema"},
		{"20260902_120000_add_unit_to_metrics.up.sql", "add_unit_to_metrics"},
	}
	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
