package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/quorum"
	"plenario/internal/repo"
	"plenario/internal/tally"
)

// ItemCreateOptions are parameters for adding an item to a session agenda.
type ItemCreateOptions struct {
	SessionID  string
	Section    domain.Section
	Title      string
	MatterID   string
	ActionType domain.ActionType
	ActorID    string
}

// AddItem appends an item to the end of its agenda section.
func (e Engine) AddItem(ctx context.Context, opts ItemCreateOptions) (domain.AgendaItem, error) {
	if opts.Section == "" {
		opts.Section = domain.SectionOrdemDoDia
	}
	if opts.Section.Order() < 0 {
		return domain.AgendaItem{}, invalid("unknown agenda section %s", opts.Section)
	}
	if opts.ActionType == "" {
		opts.ActionType = domain.ActionDiscussion
	}
	if !opts.ActionType.Valid() {
		return domain.AgendaItem{}, invalid("unknown action type %s", opts.ActionType)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, opts.SessionID)
	if err != nil {
		return domain.AgendaItem{}, err
	}
	if err := requireOpen(s); err != nil {
		return domain.AgendaItem{}, err
	}
	if a.Status == domain.AgendaConcluded {
		return domain.AgendaItem{}, invalid("agenda is concluded")
	}
	now := e.now()
	it := domain.AgendaItem{
		ID:         uuid.NewString(),
		AgendaID:   a.ID,
		Section:    opts.Section,
		Title:      opts.Title,
		ActionType: opts.ActionType,
		Status:     domain.ItemPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if opts.MatterID != "" {
		m, err := e.Repo.GetMatterTx(ctx, tx, opts.MatterID)
		if err != nil {
			return it, notFound(err, "matter", opts.MatterID)
		}
		matterID := m.ID
		it.MatterID = &matterID
		if it.Title == "" {
			it.Title = m.Title
		}
		it.CurrentRound = 1
		it.FinalRounds = 1
		if e.cfg().RequiresTwoRounds(m.Type) {
			it.FinalRounds = 2
		}
	}
	if it.Title == "" {
		return it, invalid("title is required")
	}
	if it.Rank, err = e.Repo.NextRank(ctx, tx, a.ID, it.Section); err != nil {
		return it, err
	}
	if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
		return it, fmt.Errorf("insert item: %w", err)
	}
	if err := e.syncMatter(ctx, tx, it, s.ID, opts.ActorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemAdded, s.ID, "item", it.ID, opts.ActorID, events.EventPayload{
		"section":      it.Section,
		"rank":         it.Rank,
		"matter_id":    it.MatterID,
		"final_rounds": it.FinalRounds,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

// StartItem opens discussion on a pending or postponed item, or restarts
// the clock of a paused discussion, and makes it the current item.
func (e Engine) StartItem(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error) {
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
	from := it.Status
	switch {
	case it.Status == domain.ItemPending, it.Status == domain.ItemPostponed:
	case it.Status == domain.ItemInDiscussion && it.StartedAt == nil:
	default:
		return it, invalid("cannot start item %s from %s", it.ID, it.Status)
	}
	if err := e.requireNoOtherActive(ctx, tx, sc.agenda.ID, it.ID); err != nil {
		return it, err
	}
	now := e.now()
	if it.Status == domain.ItemPostponed {
		it.FinalizedAt = nil
		it.RealTimeSeconds = nil
	}
	it.Run(now)
	it.Status = domain.ItemInDiscussion
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	a := sc.agenda
	a.CurrentItemID = &it.ID
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return it, err
	}
	if err := e.syncMatterOnStart(ctx, tx, it, sc.session.ID, actorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemStarted, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"from_status": from,
		"to_status":   it.Status,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("agenda item started", "item_started", sc.session.ID, it.ID, "from_status", string(from))
	return it, nil
}

// PauseItem stops the clock, folding the running segment into the total.
func (e Engine) PauseItem(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error) {
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
	if _, running := it.Timer().(domain.Running); !running {
		return it, invalid("item %s is not running", it.ID)
	}
	it.Freeze(e.now())
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemPaused, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"accumulated_seconds": it.AccumulatedSeconds,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("agenda item paused", "item_paused", sc.session.ID, it.ID, "accumulated_seconds", it.AccumulatedSeconds)
	return it, nil
}

// ResumeItem restarts the clock of a paused discussion or vote.
func (e Engine) ResumeItem(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error) {
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
	if it.StartedAt != nil {
		return it, invalid("item %s is already running", it.ID)
	}
	if !it.Status.Active() {
		return it, invalid("cannot resume item %s from %s", it.ID, it.Status)
	}
	if err := e.requireNoOtherActive(ctx, tx, sc.agenda.ID, it.ID); err != nil {
		return it, err
	}
	it.Run(e.now())
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	a := sc.agenda
	a.CurrentItemID = &it.ID
	if err := e.saveAgenda(ctx, tx, a); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemResumed, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"status": it.Status,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("agenda item resumed", "item_resumed", sc.session.ID, it.ID)
	return it, nil
}

// OpenVoting moves a running discussion to voting once the installation
// quorum is present.
func (e Engine) OpenVoting(ctx context.Context, sessionID, itemID, actorID string) (domain.AgendaItem, error) {
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
	if it.Status != domain.ItemInDiscussion || it.StartedAt == nil {
		return it, invalid("voting opens only on a running discussion; item %s is %s", it.ID, it.Status)
	}
	inst, err := e.installation(ctx, tx, sc.session)
	if err != nil {
		return it, err
	}
	if !inst.Met {
		return it, quorumError(inst)
	}
	it.Status = domain.ItemInVoting
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.syncMatter(ctx, tx, it, sc.session.ID, actorID); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemVotingOpened, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"present":  inst.Present,
		"required": inst.Required,
		"round":    it.CurrentRound,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("voting opened", "item_voting_opened", sc.session.ID, it.ID, "present", inst.Present, "required", inst.Required)
	return it, nil
}

func (e Engine) installation(ctx context.Context, tx *sql.Tx, s domain.Session) (quorum.Installation, error) {
	membership, err := e.membership(ctx, tx, s)
	if err != nil {
		return quorum.Installation{}, err
	}
	present, err := e.Repo.CountPresentTx(ctx, tx, s.ID)
	if err != nil {
		return quorum.Installation{}, fmt.Errorf("count present members: %w", err)
	}
	inst, err := e.evaluator().CheckInstallation(membership, present)
	if errors.Is(err, quorum.ErrMembershipUnknown) {
		return inst, invalid("cannot evaluate installation quorum: %v for term %q", err, s.TermID)
	}
	return inst, err
}

func quorumError(inst quorum.Installation) error {
	return ValidationError{
		Message: fmt.Sprintf("installation quorum not met: %d present, %d required, %d short", inst.Present, inst.Required, inst.Shortfall),
		Details: map[string]any{
			"rule":      inst.Rule,
			"required":  inst.Required,
			"present":   inst.Present,
			"shortfall": inst.Shortfall,
		},
	}
}

// ItemFinalizeOptions are parameters for closing an agenda item.
type ItemFinalizeOptions struct {
	SessionID string
	ItemID    string
	Outcome   domain.ItemStatus
	Notes     string
	ActorID   string
}

// FinalizeItem closes an item with the given outcome. A vote being closed
// as approved or rejected is tallied and decides the matter, except in the
// first round of a two-round item, where the round result is registered.
func (e Engine) FinalizeItem(ctx context.Context, opts ItemFinalizeOptions) (domain.AgendaItem, error) {
	if _, ok := domain.ParseItemOutcome(string(opts.Outcome)); !ok {
		return domain.AgendaItem{}, invalid("invalid outcome %q", opts.Outcome)
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
	it := sc.item
	if it.Status == domain.ItemConcluded {
		return it, nil
	}
	if it.Status.Closed() {
		return it, invalid("item %s was already finalized as %s", it.ID, it.Status)
	}
	if err := requireOpen(sc.session); err != nil {
		return it, err
	}
	now := e.now()
	from := it.Status
	wasVoting := from == domain.ItemInVoting
	decided := opts.Outcome == domain.ItemApproved || opts.Outcome == domain.ItemRejected

	it.Freeze(now)
	spent := it.AccumulatedSeconds
	it.RealTimeSeconds = &spent
	it.FinalizedAt = &now
	it.Status = opts.Outcome
	it.AppendNote(opts.Notes)

	payload := events.EventPayload{
		"from_status":       from,
		"to_status":         it.Status,
		"real_time_seconds": spent,
	}
	switch {
	case wasVoting && decided && it.MatterID != nil:
		res, err := e.tallyForFinalize(ctx, tx, sc.session, *it.MatterID, it.CurrentRound)
		if err != nil {
			return it, err
		}
		payload["tally"] = res
		if it.TwoRound() && it.CurrentRound < it.FinalRounds {
			registerRound(&it, opts.Outcome, now, e.cfg().Interstitial())
			if err := e.afterFirstRound(ctx, tx, it, sc.session.ID, opts.ActorID); err != nil {
				return it, err
			}
			payload["round"] = it.CurrentRound
		} else {
			if it.TwoRound() {
				registerRound(&it, opts.Outcome, now, e.cfg().Interstitial())
			}
			if err := e.decideMatter(ctx, tx, *it.MatterID, opts.Outcome, res, sc.session.ID, opts.ActorID); err != nil {
				return it, err
			}
		}
	default:
		if err := e.syncMatter(ctx, tx, it, sc.session.ID, opts.ActorID); err != nil {
			return it, err
		}
	}
	if it.ActionType == domain.ActionReading && it.Status == domain.ItemConcluded && it.MatterID != nil {
		if err := e.stampReading(ctx, tx, *it.MatterID, sc.session.ID, now); err != nil {
			return it, err
		}
	}
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
	if err := e.emit(ctx, tx, events.ItemFinalized, sc.session.ID, "item", it.ID, opts.ActorID, payload); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	e.logTransition("agenda item finalized", "item_finalized", sc.session.ID, it.ID,
		"from_status", string(from), "to_status", string(it.Status), "real_time_seconds", spent)
	return it, nil
}

// tallyForFinalize never fails on rule resolution: when the membership
// cannot be read the default rule decides.
func (e Engine) tallyForFinalize(ctx context.Context, tx *sql.Tx, s domain.Session, matterID string, round int) (tally.Result, error) {
	m, err := e.Repo.GetMatterTx(ctx, tx, matterID)
	if err != nil {
		return tally.Result{}, notFound(err, "matter", matterID)
	}
	ballots, err := e.Repo.ListBallotsTx(ctx, tx, matterID, roundOrFirst(round))
	if err != nil {
		return tally.Result{}, fmt.Errorf("list ballots: %w", err)
	}
	membership, err := e.membership(ctx, tx, s)
	if err != nil {
		e.logger().Warn("tally falling back to default rule",
			"event", "tally_fallback",
			"module", logModule,
			"session_id", s.ID,
			"matter_id", matterID,
			"error", err.Error(),
		)
		return tally.Tally(ballots, quorum.UnresolvedUseDefault{Reason: "membership unavailable"}, 0, 0), nil
	}
	present, err := e.Repo.CountPresentTx(ctx, tx, s.ID)
	if err != nil {
		return tally.Result{}, fmt.Errorf("count present: %w", err)
	}
	res := tally.Tally(ballots, e.evaluator().Resolve(matterRef(m), membership), membership, present)
	if res.Fallback {
		e.logger().Warn("tally used default rule",
			"event", "tally_fallback",
			"module", logModule,
			"session_id", s.ID,
			"matter_id", matterID,
			"detail", res.Detail,
		)
	}
	return res, nil
}

func (e Engine) decideMatter(ctx context.Context, tx *sql.Tx, matterID string, outcome domain.ItemStatus, res tally.Result, sessionID, actorID string) error {
	m, err := e.Repo.GetMatterTx(ctx, tx, matterID)
	if err != nil {
		return notFound(err, "matter", matterID)
	}
	target, _ := domain.MatterStatusFor(outcome)
	now := e.now()
	out := string(outcome)
	detail := res.Detail
	m.VoteOutcome = &out
	m.VoteResult = &detail
	m.VotedAt = &now
	if err := e.setMatterStatus(ctx, tx, &m, target, sessionID, actorID); err != nil {
		return err
	}
	return e.emit(ctx, tx, events.MatterDecided, sessionID, "matter", m.ID, actorID, events.EventPayload{
		"outcome": out,
		"tally":   res,
	})
}

func (e Engine) stampReading(ctx context.Context, tx *sql.Tx, matterID, sessionID string, now time.Time) error {
	m, err := e.Repo.GetMatterTx(ctx, tx, matterID)
	if err != nil {
		return notFound(err, "matter", matterID)
	}
	sid := sessionID
	m.ReadSessionID = &sid
	m.ReadAt = &now
	m.UpdatedAt = now
	if err := e.Repo.UpdateMatter(ctx, tx, m); err != nil {
		return fmt.Errorf("update matter %s: %w", m.ID, err)
	}
	return nil
}

// ReorderItem swaps a pending item with its neighbour in the same section.
func (e Engine) ReorderItem(ctx context.Context, sessionID, itemID string, dir domain.Direction, actorID string) (domain.AgendaItem, error) {
	if dir != domain.DirectionUp && dir != domain.DirectionDown {
		return domain.AgendaItem{}, invalid("direction must be up or down")
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
	if it.Status != domain.ItemPending {
		return it, invalid("only pending items can be reordered; item %s is %s", it.ID, it.Status)
	}
	siblings, err := e.Repo.ListItemsTx(ctx, tx, repo.ItemFilters{AgendaID: sc.agenda.ID, Section: string(it.Section)})
	if err != nil {
		return it, err
	}
	idx := -1
	for i := range siblings {
		if siblings[i].ID == it.ID {
			idx = i
			break
		}
	}
	other := idx - 1
	if dir == domain.DirectionDown {
		other = idx + 1
	}
	if idx < 0 || other < 0 || other >= len(siblings) {
		return it, invalid("item %s cannot move %s within %s", it.ID, dir, it.Section)
	}
	neighbour := siblings[other]
	it.Rank, neighbour.Rank = neighbour.Rank, it.Rank
	if err := e.saveItem(ctx, tx, &it); err != nil {
		return it, err
	}
	if err := e.saveItem(ctx, tx, &neighbour); err != nil {
		return it, err
	}
	if err := e.emit(ctx, tx, events.ItemReordered, sc.session.ID, "item", it.ID, actorID, events.EventPayload{
		"direction":    dir,
		"rank":         it.Rank,
		"swapped_with": neighbour.ID,
	}); err != nil {
		return it, err
	}
	if err := tx.Commit(); err != nil {
		return it, err
	}
	return it, nil
}

func matterRef(m domain.Matter) quorum.MatterRef {
	return quorum.MatterRef{Type: m.Type, Urgent: m.Urgent, VetoOverride: m.VetoOverride}
}

func roundOrFirst(round int) int {
	if round < 1 {
		return 1
	}
	return round
}
