package engine

import (
	"context"
	"fmt"
	"time"

	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/repo"
)

// HoldOptions are parameters for a review hold (pedido de vista).
type HoldOptions struct {
	SessionID string
	ItemID    string
	MemberID  string
	// LeadDays is the number of business days the member gets; zero uses
	// the configured default.
	LeadDays int
	ActorID  string
}

// RequestHold suspends an active item so a member can review it. The clock
// stops and the due date is LeadDays business days ahead.
func (e Engine) RequestHold(ctx context.Context, opts HoldOptions) (domain.AgendaItem, error) {
	if opts.MemberID == "" {
		return domain.AgendaItem{}, invalid("requesting member is required")
	}
	if opts.LeadDays < 0 {
		return domain.AgendaItem{}, invalid("lead days must not be negative")
	}
	lead := opts.LeadDays
	if lead == 0 {
		lead = e.cfg().Vista.LeadDays
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	sc, err := e.loadItemScope(ctx, tx, opts.SessionID, opts.ItemID)
	if err != nil {
		return sc.item, err
	}
	if err := requireInProgress(sc.session); err != nil {
		return sc.item, err
	}
	if _, err := e.Repo.GetMemberTx(ctx, tx, opts.MemberID); err != nil {
		return sc.item, notFound(err, "member", opts.MemberID)
	}
	it := sc.item
	if !it.Status.Active() {
		return it, invalid("a hold can only be requested during discussion or voting; item %s is %s", it.ID, it.Status)
	}
	now := e.now()
	due := domain.AddBusinessDays(now, lead)
	from := it.Status
	it.Freeze(now)
	it.Status = domain.ItemUnderReview
	member := opts.MemberID
	it.HoldRequestedBy = &member
	it.HoldRequestedAt = &now
	it.HoldDueAt = &due
	it.AppendNote(fmt.Sprintf("%s: vista requested by %s, due %s", now.Format(time.RFC3339), member, due.Format("2006-01-02")))
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	a := sc.agenda
	if a.CurrentItemID != nil && *a.CurrentItemID == it.ID {
		a.CurrentItemID = nil
	}
	if err := e.recomputeTotal(ctx, tx, &a); err != nil {
		return it, err
	}
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return it, err
	}
	if err := e.syncMatter(ctx, tx, it, sc.session.ID, opts.ActorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.HoldRequested, sc.session.ID, "item", it.ID, opts.ActorID, events.EventPayload{
		"from_status":  from,
		"member_id":    member,
		"due_at":       due.Format(time.RFC3339),
		"lead_days":    lead,
		"matter_id":    it.MatterID,
		"matter_state": "frozen",
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("vista requested", "item_hold_requested", sc.session.ID, it.ID, "member_id", member, "due_at", due.Format(time.RFC3339))
	return it, nil
}

// ResumeFromHold brings a held item back to discussion.
func (e Engine) ResumeFromHold(ctx context.Context, sessionID, itemID, note, actorID string) (domain.AgendaItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	sc, err := e.loadItemScope(ctx, tx, sessionID, itemID)
	if err != nil {
		return sc.item, err
	}
	if err := requireInProgress(sc.session); err != nil {
		return sc.item, err
	}
	it := sc.item
	if it.Status != domain.ItemUnderReview {
		return it, invalid("item %s is %s, not under review", it.ID, it.Status)
	}
	if err := e.requireNoOtherActive(ctx, tx, sc.agenda.ID, it.ID); err != nil {
		return it, err
	}
	now := e.now()
	it.Run(now)
	it.Status = domain.ItemInDiscussion
	line := fmt.Sprintf("%s: resumed from vista", now.Format(time.RFC3339))
	if note != "" {
		line += ": " + note
	}
	it.AppendNote(line)
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	a := sc.agenda
	a.CurrentItemID = &it.ID
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return it, err
	}
	if err := e.syncMatter(ctx, tx, it, sc.session.ID, actorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.HoldResumed, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"requested_by": it.HoldRequestedBy,
		"due_at":       it.HoldDueAt,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("vista resumed", "item_hold_resumed", sc.session.ID, it.ID)
	return it, nil
}

// ListHolds returns the session's items under review. Overdue is computed
// against the engine clock at call time.
func (e Engine) ListHolds(ctx context.Context, sessionID string) ([]domain.Hold, error) {
	a, err := e.Repo.GetAgendaBySession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "agenda of session", sessionID)
	}
	items, err := e.Repo.ListItems(ctx, repo.ItemFilters{AgendaID: a.ID, Status: string(domain.ItemUnderReview)})
	if err != nil {
		return nil, err
	}
	now := e.now()
	holds := make([]domain.Hold, 0, len(items))
	for _, it := range items {
		h := domain.Hold{Item: it}
		if it.HoldDueAt != nil {
			h.DueAt = *it.HoldDueAt
			h.Overdue = now.After(*it.HoldDueAt)
		}
		holds = append(holds, h)
	}
	return holds, nil
}
