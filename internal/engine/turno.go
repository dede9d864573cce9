package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/repo"
)

// registerRound records the result of the item's current round. An approved
// first round opens the interstitial period before the second.
func registerRound(it *domain.AgendaItem, result domain.ItemStatus, now time.Time, interstitial time.Duration) {
	r := string(result)
	switch roundOrFirst(it.CurrentRound) {
	case 1:
		it.Round1Result = &r
		if result == domain.ItemApproved {
			until := now.Add(interstitial)
			it.Interstitial = true
			it.InterstitialUntil = &until
		}
	default:
		it.Round2Result = &r
	}
}

func canStartSecondRound(it domain.AgendaItem, now time.Time) bool {
	if it.Round1Result == nil || *it.Round1Result != string(domain.ItemApproved) {
		return false
	}
	if !it.Interstitial || it.InterstitialUntil == nil {
		return false
	}
	return !now.Before(*it.InterstitialUntil)
}

// afterFirstRound puts the matter back on the agenda side while it waits
// for the second round. A rejected first round decides the matter.
func (e Engine) afterFirstRound(ctx context.Context, tx *sql.Tx, it domain.AgendaItem, sessionID, actorID string) error {
	if it.MatterID == nil {
		return nil
	}
	m, err := e.Repo.GetMatterTx(ctx, tx, *it.MatterID)
	if err != nil {
		return notFound(err, "matter", *it.MatterID)
	}
	if it.Status == domain.ItemRejected {
		return e.setMatterStatus(ctx, tx, &m, domain.MatterRejected, sessionID, actorID)
	}
	if m.Status.Terminal() || m.Status == domain.MatterInAgenda {
		return nil
	}
	return e.setMatterStatus(ctx, tx, &m, domain.MatterInAgenda, sessionID, actorID)
}

// InitRounds sets how many voting rounds an item needs.
func (e Engine) InitRounds(ctx context.Context, sessionID, itemID string, finalRounds int, actorID string) (domain.AgendaItem, error) {
	if finalRounds < 1 || finalRounds > 2 {
		return domain.AgendaItem{}, invalid("final rounds must be 1 or 2")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	sc, err := e.loadItemScope(ctx, tx, sessionID, itemID)
	if err != nil {
		return sc.item, err
	}
	if err := requireOpen(sc.session); err != nil {
		return sc.item, err
	}
	it := sc.item
	if it.Status != domain.ItemPending || it.CurrentRound > 1 || it.Round1Result != nil {
		return it, invalid("rounds can only be set before the first round; item %s is %s", it.ID, it.Status)
	}
	it.CurrentRound = 1
	it.FinalRounds = finalRounds
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.RoundsInitialized, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"final_rounds": finalRounds,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

// RegisterRoundResult records a round outcome decided outside FinalizeItem.
func (e Engine) RegisterRoundResult(ctx context.Context, sessionID, itemID string, result domain.ItemStatus, actorID string) (domain.AgendaItem, error) {
	if result != domain.ItemApproved && result != domain.ItemRejected {
		return domain.AgendaItem{}, invalid("round result must be approved or rejected")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	sc, err := e.loadItemScope(ctx, tx, sessionID, itemID)
	if err != nil {
		return sc.item, err
	}
	it := sc.item
	if !it.TwoRound() {
		return it, invalid("item %s is not a two-round item", it.ID)
	}
	if roundOrFirst(it.CurrentRound) == 1 && it.Round1Result != nil {
		return it, invalid("first round of item %s already registered as %s", it.ID, *it.Round1Result)
	}
	if it.CurrentRound == 2 && it.Round2Result != nil {
		return it, invalid("second round of item %s already registered as %s", it.ID, *it.Round2Result)
	}
	registerRound(&it, result, e.now(), e.cfg().Interstitial())
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.RoundResultRegistered, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"round":              roundOrFirst(it.CurrentRound),
		"result":             result,
		"interstitial_until": it.InterstitialUntil,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

// CanStartSecondRound reports whether the interstitial period of an item
// approved in its first round has elapsed.
func (e Engine) CanStartSecondRound(ctx context.Context, sessionID, itemID string) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	sc, err := e.loadItemScope(ctx, tx, sessionID, itemID)
	if err != nil {
		return false, err
	}
	return canStartSecondRound(sc.item, e.now()), tx.Commit()
}

// StartSecondRound returns an item to pending for its second round. When
// targetSessionID names another session the item moves to that agenda.
func (e Engine) StartSecondRound(ctx context.Context, sessionID, itemID, targetSessionID, actorID string) (domain.AgendaItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	sc, err := e.loadItemScope(ctx, tx, sessionID, itemID)
	if err != nil {
		return sc.item, err
	}
	it := sc.item
	now := e.now()
	if !canStartSecondRound(it, now) {
		details := map[string]any{"interstitial": it.Interstitial}
		if it.InterstitialUntil != nil {
			details["interstitial_until"] = it.InterstitialUntil.Format(time.RFC3339)
		}
		return it, ValidationError{
			Message: fmt.Sprintf("second round of item %s cannot start yet", it.ID),
			Details: details,
		}
	}
	target := sc.session
	if targetSessionID != "" && targetSessionID != sessionID {
		s, a, err := e.loadSessionAgenda(ctx, tx, targetSessionID)
		if err != nil {
			return it, err
		}
		if a.Status == domain.AgendaConcluded {
			return it, invalid("agenda of session %s is concluded", s.ID)
		}
		target = s
		it.AppendNote(fmt.Sprintf("%s: first round took %ds in session %s", now.Format(time.RFC3339), it.AccumulatedSeconds, sessionID))
		it.AgendaID = a.ID
		if it.Rank, err = e.Repo.NextRank(ctx, tx, a.ID, it.Section); err != nil {
			return it, err
		}
		it.AccumulatedSeconds = 0
	}
	if err := requireOpen(target); err != nil {
		return it, err
	}
	it.Interstitial = false
	it.CurrentRound = 2
	it.Status = domain.ItemPending
	it.StartedAt = nil
	it.FinalizedAt = nil
	it.RealTimeSeconds = nil
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.syncMatter(ctx, tx, it, target.ID, actorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.SecondRoundStarted, target.ID, "item", it.ID, actorID, events.EventPayload{
		"from_session_id": sessionID,
		"agenda_id":       it.AgendaID,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("second round scheduled", "item_second_round_started", target.ID, it.ID)
	return it, nil
}

// ListInterstitialItems lists the session's items waiting out the interval
// between rounds.
func (e Engine) ListInterstitialItems(ctx context.Context, sessionID string) ([]domain.AgendaItem, error) {
	a, err := e.Repo.GetAgendaBySession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "agenda of session", sessionID)
	}
	return e.Repo.ListItems(ctx, repo.ItemFilters{AgendaID: a.ID, Interstitial: true})
}
