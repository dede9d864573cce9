package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plenario/internal/config"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (r Repo) UpsertChamberConfig(ctx context.Context, cfg *config.Config, now time.Time) error {
	return upsertChamberConfig(ctx, r.DB, cfg, now)
}

func (r Repo) UpsertChamberConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, now time.Time) error {
	return upsertChamberConfig(ctx, tx, cfg, now)
}

func upsertChamberConfig(ctx context.Context, q querier, cfg *config.Config, now time.Time) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	data, err := cfg.ToYAML()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO chamber_configs(id,config_yaml,updated_at) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, string(data), formatTime(now))
	return err
}

func (r Repo) GetChamberConfig(ctx context.Context) (*config.Config, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM chamber_configs WHERE id=1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(raw))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
