package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"plenario/internal/config"
	"plenario/internal/db"
	"plenario/internal/engine"
	"plenario/internal/migrate"
	"plenario/internal/repo"
)

func openRepo(t *testing.T, dir string) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestResolveConfigSeedsFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("Camara de Teste")), 0o644); err != nil {
		t.Fatal(err)
	}
	r := openRepo(t, dir)
	ctx := context.Background()
	cfg, err := ResolveConfig(ctx, dir, r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Chamber.Name != "Camara de Teste" {
		t.Fatalf("expected workspace config, got %q", cfg.Chamber.Name)
	}
	stored, err := r.GetChamberConfig(ctx)
	if err != nil || stored.Chamber.Name != "Camara de Teste" {
		t.Fatalf("config should be stored: %v", err)
	}
	// the stored copy wins afterwards
	os.Remove(config.Path(dir))
	if cfg, err = ResolveConfig(ctx, dir, r); err != nil || cfg.Chamber.Name != "Camara de Teste" {
		t.Fatalf("second resolve: %v", err)
	}
}

func TestResolveSessionRef(t *testing.T) {
	dir := t.TempDir()
	r := openRepo(t, dir)
	ctx := context.Background()
	eng := engine.New(r.DB, config.Default())
	view, err := eng.CreateSession(ctx, engine.SessionCreateOptions{Number: 12, Year: 2025, ScheduledAt: time.Date(2025, 5, 6, 18, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{view.Session.ID, "session-12-2025"} {
		got, err := ResolveSessionRef(ctx, r, ref)
		if err != nil || got != view.Session.ID {
			t.Fatalf("resolve %s: %q %v", ref, got, err)
		}
	}
	if _, err := ResolveSessionRef(ctx, r, "session-13-2025"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := ResolveSessionRef(ctx, r, ""); err == nil {
		t.Fatalf("expected error for empty ref")
	}
}
