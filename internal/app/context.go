package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"plenario/internal/config"
	"plenario/internal/repo"
)

// ResolveConfig returns the chamber config stored in the DB. When none is
// stored yet it seeds one, preferring plenario.yml in the workspace over the
// built-in defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetChamberConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.UpsertChamberConfig(ctx, seed, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("seed chamber config: %w", err)
	}
	return seed, nil
}

var sessionSlug = regexp.MustCompile(`^session-(\d+)-(\d{4})$`)

// ResolveSessionRef accepts a session ID or a slug of the form
// session-{number}-{year}.
func ResolveSessionRef(ctx context.Context, r repo.Repo, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("session not specified; use --session")
	}
	if _, err := r.GetSession(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	m := sessionSlug.FindStringSubmatch(ref)
	if m == nil {
		return "", fmt.Errorf("session %s: %w", ref, repo.ErrNotFound)
	}
	number, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	s, err := r.FindSessionByNumber(ctx, number, year)
	if err != nil {
		return "", fmt.Errorf("session %s: %w", ref, err)
	}
	return s.ID, nil
}
