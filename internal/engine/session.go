package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/repo"
)

var sessionTypes = map[string]bool{
	"ordinaria":      true,
	"extraordinaria": true,
	"solene":         true,
	"especial":       true,
}

// SessionCreateOptions are parameters for scheduling a session.
type SessionCreateOptions struct {
	ID          string
	Number      int
	Year        int
	Type        string
	TermID      string
	ScheduledAt time.Time
	Location    string
	ActorID     string
}

// CreateSession schedules a session together with its empty draft agenda.
func (e Engine) CreateSession(ctx context.Context, opts SessionCreateOptions) (domain.SessionAgenda, error) {
	if opts.Type == "" {
		opts.Type = "ordinaria"
	}
	if !sessionTypes[opts.Type] {
		return domain.SessionAgenda{}, invalid("unknown session type %s", opts.Type)
	}
	if opts.Number <= 0 || opts.Year <= 0 {
		return domain.SessionAgenda{}, invalid("session number and year are required")
	}
	if opts.ScheduledAt.IsZero() {
		return domain.SessionAgenda{}, invalid("scheduled date is required")
	}
	now := e.now()
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("session|%d|%d", opts.Number, opts.Year))).String()
	}
	s := domain.Session{
		ID:          id,
		Number:      opts.Number,
		Year:        opts.Year,
		Type:        opts.Type,
		TermID:      opts.TermID,
		ScheduledAt: opts.ScheduledAt.UTC().Truncate(time.Second),
		Location:    opts.Location,
		Status:      domain.SessionScheduled,
		CreatedAt:   now,
	}
	a := domain.Agenda{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Status:    domain.AgendaDraft,
		CreatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		if isUniqueViolation(err) {
			return domain.SessionAgenda{}, invalid("session %d/%d already exists", s.Number, s.Year)
		}
		return domain.SessionAgenda{}, fmt.Errorf("insert session: %w", err)
	}
	if err := e.Repo.InsertAgenda(ctx, tx, a); err != nil {
		return domain.SessionAgenda{}, fmt.Errorf("insert agenda: %w", err)
	}
	if err := e.emit(ctx, tx, events.SessionCreated, s.ID, "session", s.ID, opts.ActorID, events.EventPayload{
		"number":       s.Number,
		"year":         s.Year,
		"type":         s.Type,
		"scheduled_at": s.ScheduledAt.Format(time.RFC3339),
	}); err != nil {
		return domain.SessionAgenda{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SessionAgenda{}, err
	}
	return domain.SessionAgenda{Session: s, Agenda: a}, nil
}

// ApproveAgenda publishes the agenda. Unless forced, approval must happen at
// least the configured publication lead before the scheduled date.
func (e Engine) ApproveAgenda(ctx context.Context, sessionID, actorID string, force bool) (domain.Agenda, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agenda{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return a, err
	}
	if err := requireOpen(s); err != nil {
		return a, err
	}
	if a.Status != domain.AgendaDraft {
		return a, invalid("agenda is %s; only a draft agenda can be approved", a.Status)
	}
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return a, err
	}
	if len(items) == 0 {
		return a, invalid("agenda has no items")
	}
	now := e.now()
	lead := e.cfg().PublicationLead(s.Type)
	deadline := s.ScheduledAt.Add(-lead)
	if !force && lead > 0 && now.After(deadline) {
		return a, ValidationError{
			Message: fmt.Sprintf("agenda must be approved by %s, %s before the session", deadline.Format(time.RFC3339), lead),
			Details: map[string]any{"deadline": deadline.Format(time.RFC3339)},
		}
	}
	a.Status = domain.AgendaApproved
	a.PublishedAt = &now
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.emit(ctx, tx, events.AgendaApproved, s.ID, "agenda", a.ID, actorID, events.EventPayload{
		"items":  len(items),
		"forced": force,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// StartSession opens a scheduled session and points the agenda at its first
// pending item. The item is selected, not started. Starting a session that is
// already in progress returns it unchanged.
func (e Engine) StartSession(ctx context.Context, sessionID, actorID string) (domain.SessionAgenda, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		return domain.SessionAgenda{}, notFound(err, "session", sessionID)
	}
	switch s.Status {
	case domain.SessionInProgress:
		return e.sessionAgenda(ctx, tx, sessionID)
	case domain.SessionConcluded, domain.SessionCancelled:
		return domain.SessionAgenda{}, invalid("session %s is %s and cannot start", s.ID, s.Status)
	}
	a, err := e.Repo.GetAgendaBySessionTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.SessionAgenda{}, invalid("session %s has no agenda", s.ID)
		}
		return domain.SessionAgenda{}, err
	}
	if a.Status != domain.AgendaApproved && a.Status != domain.AgendaInProgress {
		return domain.SessionAgenda{}, invalid("agenda is %s; it must be approved before the session starts", a.Status)
	}
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	if len(items) == 0 {
		return domain.SessionAgenda{}, invalid("agenda has no items")
	}

	now := e.now()
	s.Status = domain.SessionInProgress
	s.StartedAt = &now
	a.Status = domain.AgendaInProgress
	a.CurrentItemID = nil
	for _, it := range items {
		if it.Status == domain.ItemPending || it.Status == domain.ItemPostponed {
			id := it.ID
			a.CurrentItemID = &id
			break
		}
	}
	if err := e.Repo.UpdateSession(ctx, tx, s); err != nil {
		return domain.SessionAgenda{}, fmt.Errorf("update session: %w", err)
	}
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return domain.SessionAgenda{}, err
	}
	if err := e.emit(ctx, tx, events.SessionStarted, s.ID, "session", s.ID, actorID, events.EventPayload{
		"current_item_id": a.CurrentItemID,
	}); err != nil {
		return domain.SessionAgenda{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SessionAgenda{}, err
	}
	e.logTransition("session started", "session_started", s.ID, "", "items", len(items))
	return domain.SessionAgenda{Session: s, Agenda: a, Items: items}, nil
}

// FinalizeSession closes the session. Items still under discussion or vote
// are frozen and postponed; pending items stay pending.
func (e Engine) FinalizeSession(ctx context.Context, sessionID, actorID string) (domain.SessionAgenda, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	switch s.Status {
	case domain.SessionCancelled:
		return domain.SessionAgenda{}, invalid("session %s was cancelled", s.ID)
	case domain.SessionConcluded:
		return e.sessionAgenda(ctx, tx, sessionID)
	}
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	now := e.now()
	var postponed []string
	var total int64
	for i := range items {
		it := &items[i]
		if it.Status.Active() {
			it.Freeze(now)
			spent := it.AccumulatedSeconds
			it.RealTimeSeconds = &spent
			it.FinalizedAt = &now
			it.Status = domain.ItemPostponed
			it.AppendNote(fmt.Sprintf("%s: postponed at session close", now.Format(time.RFC3339)))
			if err := e.saveItem(ctx, tx, it); err != nil {
				return domain.SessionAgenda{}, err
			}
			if err := e.syncMatter(ctx, tx, *it, s.ID, actorID); err != nil {
				return domain.SessionAgenda{}, err
			}
			postponed = append(postponed, it.ID)
		} else if it.StartedAt != nil {
			it.Freeze(now)
			if err := e.saveItem(ctx, tx, it); err != nil {
				return domain.SessionAgenda{}, err
			}
		}
		total += it.SpentSeconds()
	}
	a.Status = domain.AgendaConcluded
	a.CurrentItemID = nil
	a.TotalRealSeconds = total
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return domain.SessionAgenda{}, err
	}
	s.Status = domain.SessionConcluded
	s.Finalized = true
	s.FinishedAt = &now
	if err := e.Repo.UpdateSession(ctx, tx, s); err != nil {
		return domain.SessionAgenda{}, fmt.Errorf("update session: %w", err)
	}
	if err := e.emit(ctx, tx, events.SessionFinalized, s.ID, "session", s.ID, actorID, events.EventPayload{
		"postponed_items":    postponed,
		"total_real_seconds": total,
	}); err != nil {
		return domain.SessionAgenda{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SessionAgenda{}, err
	}
	e.logTransition("session finalized", "session_finalized", s.ID, "", "postponed", len(postponed), "total_real_seconds", total)
	return domain.SessionAgenda{Session: s, Agenda: a, Items: items}, nil
}

// CancelSession cancels a scheduled or running session. Running clocks are
// stopped; item statuses are kept as they were.
func (e Engine) CancelSession(ctx context.Context, sessionID, reason, actorID string) (domain.Session, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return s, err
	}
	if s.Status != domain.SessionScheduled && s.Status != domain.SessionInProgress {
		return s, invalid("session %s is %s and cannot be cancelled", s.ID, s.Status)
	}
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return s, err
	}
	now := e.now()
	for i := range items {
		if items[i].StartedAt == nil {
			continue
		}
		items[i].Freeze(now)
		if err := e.saveItem(ctx, tx, &items[i]); err != nil {
			return s, err
		}
	}
	if a.CurrentItemID != nil {
		a.CurrentItemID = nil
		if err := e.recomputeTotal(ctx, tx, &a); err != nil {
			return s, err
		}
		if err := e.saveAgenda(ctx, tx, a); err != nil {
			return s, err
		}
	}
	s.Status = domain.SessionCancelled
	s.FinishedAt = &now
	if err := e.Repo.UpdateSession(ctx, tx, s); err != nil {
		return s, fmt.Errorf("update session: %w", err)
	}
	if err := e.emit(ctx, tx, events.SessionCancelled, s.ID, "session", s.ID, actorID, events.EventPayload{
		"reason": reason,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.logTransition("session cancelled", "session_cancelled", s.ID, "")
	return s, nil
}
