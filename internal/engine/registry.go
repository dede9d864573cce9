package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"plenario/internal/config"
	"plenario/internal/domain"
	"plenario/internal/events"
)

// RegisterMember adds an active member to a legislative term.
func (e Engine) RegisterMember(ctx context.Context, m domain.Member, actorID string) (domain.Member, error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return m, invalid("member name is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Active = true
	m.CreatedAt = e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
		if isUniqueViolation(err) {
			return m, invalid("member %s already exists", m.ID)
		}
		return m, fmt.Errorf("insert member: %w", err)
	}
	if err := e.emit(ctx, tx, events.MemberRegistered, "", "member", m.ID, actorID, events.EventPayload{
		"name":    m.Name,
		"term_id": m.TermID,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// SetMemberActive includes or excludes a member from membership counts.
func (e Engine) SetMemberActive(ctx context.Context, memberID string, active bool, actorID string) (domain.Member, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetMemberActive(ctx, tx, memberID, active); err != nil {
		return domain.Member{}, notFound(err, "member", memberID)
	}
	m, err := e.Repo.GetMemberTx(ctx, tx, memberID)
	if err != nil {
		return m, notFound(err, "member", memberID)
	}
	if err := e.emit(ctx, tx, events.MemberRegistered, "", "member", m.ID, actorID, events.EventPayload{
		"active": active,
	}); err != nil {
		return m, err
	}
	return m, tx.Commit()
}

// CreateMatter files a matter. New matters wait for an agenda unless an
// upstream status is given.
func (e Engine) CreateMatter(ctx context.Context, m domain.Matter, actorID string) (domain.Matter, error) {
	m.Title = strings.TrimSpace(m.Title)
	if m.Type == "" || m.Title == "" {
		return m, invalid("matter type and title are required")
	}
	if m.Status == "" {
		m.Status = domain.MatterAwaitingAgenda
	}
	if !m.Status.Upstream() {
		return m, invalid("a new matter cannot start as %s", m.Status)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := e.now()
	m.CreatedAt = now
	m.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMatter(ctx, tx, m); err != nil {
		if isUniqueViolation(err) {
			return m, invalid("matter %s already exists", m.ID)
		}
		return m, fmt.Errorf("insert matter: %w", err)
	}
	if err := e.emit(ctx, tx, events.MatterCreated, "", "matter", m.ID, actorID, events.EventPayload{
		"type":          m.Type,
		"number":        m.Number,
		"year":          m.Year,
		"urgent":        m.Urgent,
		"veto_override": m.VetoOverride,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// ImportConfig validates and stores the chamber configuration. The running
// engine keeps its own copy; callers rebuild it to pick up the change.
func (e Engine) ImportConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return invalid("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return ValidationError{Message: err.Error()}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertChamberConfigTx(ctx, tx, cfg, e.now()); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := e.emit(ctx, tx, events.ConfigUpdated, "", "config", "chamber", actorID, events.EventPayload{
		"chamber": cfg.Chamber.Name,
		"seats":   cfg.Chamber.Seats,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
