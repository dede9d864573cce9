package migrate

import (
	"testing"

	"plenario/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	applied, latest, err := CurrentVersion(conn)
	if err != nil || applied != 0 || latest < 1 {
		t.Fatalf("fresh store: applied=%d latest=%d err=%v", applied, latest, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	applied, latest, err = CurrentVersion(conn)
	if err != nil || applied != latest {
		t.Fatalf("expected schema at %d, got %d (%v)", latest, applied, err)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("schema_version should hold one row, got %d %v", n, err)
	}
}
