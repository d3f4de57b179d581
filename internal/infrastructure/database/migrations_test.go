package database

import (
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_create_pupils.up.sql": {
			Data: []byte("CREATE TABLE pupils (id TEXT PRIMARY KEY, name TEXT NOT NULL);"),
		},
		"20260301_090000_create_pupils.down.sql": {
			Data: []byte("DROP TABLE pupils;"),
		},
		"20260302_100000_add_class.up.sql": {
			Data: []byte("ALTER TABLE pupils ADD COLUMN class TEXT;"),
		},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRowContext(t.Context(),
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&found)
	return err == nil
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "pupils") {
		t.Fatal("table pupils not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Errorf("Migrate() second run error = %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	broken := fstest.MapFS{
		"20260301_090000_broken.up.sql": {Data: []byte("CREATE TABLE ok (id TEXT); NOT VALID SQL;")},
	}
	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() expected error for invalid SQL, got nil")
	}

	_, pending, err := db.MigrationStatus(ctx, broken)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 after failed migration", len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	only := fstest.MapFS{
		"20260301_090000_create_pupils.up.sql":   testMigrations()["20260301_090000_create_pupils.up.sql"],
		"20260301_090000_create_pupils.down.sql": testMigrations()["20260301_090000_create_pupils.down.sql"],
	}
	if err := db.Migrate(ctx, only); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, only); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "pupils") {
		t.Error("table pupils still exists after MigrateDown()")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, only); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations()); err == nil {
		t.Error("MigrateDown() expected error for migration without down SQL, got nil")
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Version != "20260301_090000" || migrations[0].Name != "create_pupils" {
		t.Errorf("first migration = %s/%s, want 20260301_090000/create_pupils", migrations[0].Version, migrations[0].Name)
	}
	if migrations[0].DownSQL == "" {
		t.Error("first migration missing down SQL")
	}

	if got, err := LoadMigrations(nil); err != nil || got != nil {
		t.Errorf("LoadMigrations(nil) = %v, %v; want nil, nil", got, err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_090000_initial_schema.up.sql", "20260301_090000", "initial_schema", true, true},
		{"20260301_090000_initial_schema.down.sql", "20260301_090000", "initial_schema", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"initial.up.sql", "", "", false, false},
		{"20260301_090000_x.sql", "", "", false, false},
		{"20260301_090000_x.up.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)", version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
