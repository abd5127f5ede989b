package migrate

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"migrations/2_add_index.up.sql":     {Data: []byte("CREATE INDEX idx_users_name ON users (name)")},
		"migrations/2_add_index.down.sql":   {Data: []byte("DROP INDEX idx_users_name")},
		"migrations/1_create_users.up.sql":  {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY)")},
		"migrations/10_add_email.up.sql":    {Data: []byte("ALTER TABLE users ADD COLUMN email TEXT")},
		"migrations/notes.txt":              {Data: []byte("ignored")},
		"migrations/malformed.up.sql.bak":   {Data: []byte("ignored")},
		"migrations/other/3_nested.up.sql":  {Data: []byte("ignored, directories are not descended")},
	}

	migrations, err := LoadMigrations(files, "migrations")
	if err != nil {
		t.Fatalf("LoadMigrations error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("len(migrations) = %d, want 3", len(migrations))
	}
	for i, wantVersion := range []int64{1, 2, 10} {
		if migrations[i].Version != wantVersion {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, wantVersion)
		}
	}
	if migrations[0].Name != "create_users" {
		t.Errorf("Name = %q", migrations[0].Name)
	}
	if migrations[1].DownSQL == "" {
		t.Error("version 2 should have a down script")
	}
	if migrations[2].DownSQL != "" {
		t.Error("version 10 has no down script")
	}
}

func TestLoadMigrations_MissingUp(t *testing.T) {
	files := fstest.MapFS{
		"migrations/1_orphan.down.sql": {Data: []byte("DROP TABLE users")},
	}

	_, err := LoadMigrations(files, "migrations")
	if err == nil || !strings.Contains(err.Error(), "missing up migration") {
		t.Fatalf("LoadMigrations = %v, want missing up migration error", err)
	}
}

func TestLoadMigrations_MissingDirectory(t *testing.T) {
	if _, err := LoadMigrations(fstest.MapFS{}, "migrations"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
