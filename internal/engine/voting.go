package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/quorum"
	"plenario/internal/repo"
	"plenario/internal/tally"
)

// MarkAttendance records whether a member is present at a session.
func (e Engine) MarkAttendance(ctx context.Context, sessionID, memberID string, present bool, actorID string) (domain.Attendance, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attendance{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		return domain.Attendance{}, notFound(err, "session", sessionID)
	}
	if err := requireOpen(s); err != nil {
		return domain.Attendance{}, err
	}
	m, err := e.Repo.GetMemberTx(ctx, tx, memberID)
	if err != nil {
		return domain.Attendance{}, notFound(err, "member", memberID)
	}
	if present && !m.Active {
		return domain.Attendance{}, invalid("member %s is inactive", m.ID)
	}
	if s.TermID != "" && m.TermID != s.TermID {
		return domain.Attendance{}, invalid("member %s does not belong to term %s", m.ID, s.TermID)
	}
	a := domain.Attendance{SessionID: s.ID, MemberID: m.ID, Present: present, RecordedAt: e.now()}
	if err := e.Repo.UpsertAttendance(ctx, tx, a); err != nil {
		return a, fmt.Errorf("record attendance: %w", err)
	}
	if err := e.emit(ctx, tx, events.AttendanceMarked, s.ID, "member", m.ID, actorID, events.EventPayload{
		"present": present,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// QuorumStatus reports the installation quorum of a session as it stands.
func (e Engine) QuorumStatus(ctx context.Context, sessionID string) (quorum.Installation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return quorum.Installation{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		return quorum.Installation{}, notFound(err, "session", sessionID)
	}
	inst, err := e.installation(ctx, tx, s)
	if err != nil {
		return inst, err
	}
	return inst, tx.Commit()
}

// BallotOptions are parameters for a member's vote on a matter.
type BallotOptions struct {
	SessionID string
	MatterID  string
	MemberID  string
	Value     domain.BallotValue
	ActorID   string
}

// CastBallot records a vote while the matter's item is in voting. Voting
// again in the same round replaces the earlier value.
func (e Engine) CastBallot(ctx context.Context, opts BallotOptions) (domain.Ballot, error) {
	if !opts.Value.Valid() {
		return domain.Ballot{}, invalid("invalid ballot value %q", opts.Value)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ballot{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, opts.SessionID)
	if err != nil {
		return domain.Ballot{}, err
	}
	if err := requireInProgress(s); err != nil {
		return domain.Ballot{}, err
	}
	if _, err := e.Repo.GetMatterTx(ctx, tx, opts.MatterID); err != nil {
		return domain.Ballot{}, notFound(err, "matter", opts.MatterID)
	}
	it, ok, err := e.votingItem(ctx, tx, a.ID, opts.MatterID)
	if err != nil {
		return domain.Ballot{}, err
	}
	if !ok {
		return domain.Ballot{}, invalid("matter %s is not being voted in session %s", opts.MatterID, s.ID)
	}
	if _, err := e.Repo.GetMemberTx(ctx, tx, opts.MemberID); err != nil {
		return domain.Ballot{}, notFound(err, "member", opts.MemberID)
	}
	att, err := e.Repo.GetAttendanceTx(ctx, tx, s.ID, opts.MemberID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Ballot{}, err
	}
	if !att.Present {
		return domain.Ballot{}, invalid("member %s is not present", opts.MemberID)
	}
	b := domain.Ballot{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		MatterID:  opts.MatterID,
		MemberID:  opts.MemberID,
		Round:     roundOrFirst(it.CurrentRound),
		Value:     opts.Value,
		CastAt:    e.now(),
	}
	if err := e.Repo.UpsertBallot(ctx, tx, b); err != nil {
		return b, fmt.Errorf("record ballot: %w", err)
	}
	if err := e.emit(ctx, tx, events.BallotCast, s.ID, "matter", b.MatterID, opts.ActorID, events.EventPayload{
		"member_id": b.MemberID,
		"round":     b.Round,
		"value":     b.Value,
	}); err != nil {
		return b, err
	}
	if err := tx.Commit(); err != nil {
		return b, err
	}
	return b, nil
}

func (e Engine) votingItem(ctx context.Context, tx *sql.Tx, agendaID, matterID string) (domain.AgendaItem, bool, error) {
	items, err := e.Repo.ListItemsTx(ctx, tx, repo.ItemFilters{AgendaID: agendaID, MatterID: matterID, Status: string(domain.ItemInVoting)})
	if err != nil {
		return domain.AgendaItem{}, false, err
	}
	if len(items) == 0 {
		return domain.AgendaItem{}, false, nil
	}
	return items[0], true, nil
}

// Tally counts the ballots of a matter's current round in a session. It
// never fails on rule resolution; see tally.Result.Fallback.
func (e Engine) Tally(ctx context.Context, sessionID, matterID string) (tally.Result, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return tally.Result{}, err
	}
	defer tx.Rollback()

	s, a, err := e.loadSessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return tally.Result{}, err
	}
	round := 1
	items, err := e.Repo.ListItemsTx(ctx, tx, repo.ItemFilters{AgendaID: a.ID, MatterID: matterID})
	if err != nil {
		return tally.Result{}, err
	}
	for _, it := range items {
		round = roundOrFirst(it.CurrentRound)
		if it.Status == domain.ItemInVoting {
			break
		}
	}
	res, err := e.tallyForFinalize(ctx, tx, s, matterID, round)
	if err != nil {
		return res, err
	}
	return res, tx.Commit()
}
