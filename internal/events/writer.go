// Package events records the audit trail of every plenary transition.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	SessionCreated        = "session.created"
	SessionStarted        = "session.started"
	SessionFinalized      = "session.finalized"
	SessionCancelled      = "session.cancelled"
	AgendaApproved        = "agenda.approved"
	ItemAdded             = "item.added"
	ItemStarted           = "item.started"
	ItemPaused            = "item.paused"
	ItemResumed           = "item.resumed"
	ItemVotingOpened      = "item.voting.opened"
	ItemFinalized         = "item.finalized"
	ItemReordered         = "item.reordered"
	ItemPostponed         = "item.postponed"
	HoldRequested         = "item.hold.requested"
	HoldResumed           = "item.hold.resumed"
	RoundsInitialized     = "item.rounds.initialized"
	RoundResultRegistered = "item.round.registered"
	SecondRoundStarted    = "item.round.second_started"
	MatterCreated         = "matter.created"
	MatterStatusChanged   = "matter.status.changed"
	MatterDecided         = "matter.decided"
	MemberRegistered      = "member.registered"
	AttendanceMarked      = "attendance.marked"
	BallotCast            = "ballot.cast"
	ConfigUpdated         = "config.updated"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, sessionID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "system"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,session_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(sessionID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
