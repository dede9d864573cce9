package engine

import (
	"context"
	"database/sql"
	"fmt"

	"plenario/internal/domain"
	"plenario/internal/events"
)

// syncMatter propagates an item status onto the item's matter. Matters that
// already reached a terminal status are left alone, and statuses with no
// mapping leave the matter unchanged.
func (e Engine) syncMatter(ctx context.Context, tx *sql.Tx, it domain.AgendaItem, sessionID, actorID string) error {
	if it.MatterID == nil {
		return nil
	}
	target, ok := domain.MatterStatusFor(it.Status)
	if !ok {
		return nil
	}
	m, err := e.Repo.GetMatterTx(ctx, tx, *it.MatterID)
	if err != nil {
		return notFound(err, "matter", *it.MatterID)
	}
	if m.Status.Terminal() || m.Status == target {
		return nil
	}
	return e.setMatterStatus(ctx, tx, &m, target, sessionID, actorID)
}

// syncMatterOnStart moves the matter into discussion only while it is still
// upstream of the floor.
func (e Engine) syncMatterOnStart(ctx context.Context, tx *sql.Tx, it domain.AgendaItem, sessionID, actorID string) error {
	if it.MatterID == nil {
		return nil
	}
	m, err := e.Repo.GetMatterTx(ctx, tx, *it.MatterID)
	if err != nil {
		return notFound(err, "matter", *it.MatterID)
	}
	if !m.Status.Upstream() {
		return nil
	}
	return e.setMatterStatus(ctx, tx, &m, domain.MatterInDiscussion, sessionID, actorID)
}

func (e Engine) setMatterStatus(ctx context.Context, tx *sql.Tx, m *domain.Matter, target domain.MatterStatus, sessionID, actorID string) error {
	from := m.Status
	m.Status = target
	if target.Terminal() {
		sid := sessionID
		m.DecidedSessionID = &sid
	}
	m.UpdatedAt = e.now()
	if err := e.Repo.UpdateMatter(ctx, tx, *m); err != nil {
		return fmt.Errorf("update matter %s: %w", m.ID, err)
	}
	return e.emit(ctx, tx, events.MatterStatusChanged, sessionID, "matter", m.ID, actorID, events.EventPayload{
		"from_status": from,
		"to_status":   target,
	})
}
