package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plenario/internal/config"
	"plenario/internal/domain"
	"plenario/internal/events"
	"plenario/internal/quorum"
	"plenario/internal/repo"
)

const logModule = "plenario/engine"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

// now is truncated to whole seconds so stored timestamps and accumulated
// durations agree exactly.
func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC().Truncate(time.Second)
	}
	return time.Now().UTC().Truncate(time.Second)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func (e Engine) evaluator() quorum.Evaluator {
	return quorum.New(e.cfg())
}

func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, sessionID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, sessionID, entityKind, entityID, actorID, payload)
}

func (e Engine) logTransition(msg, event, sessionID, itemID string, attrs ...any) {
	args := append([]any{
		"event", event,
		"module", logModule,
		"session_id", sessionID,
		"item_id", itemID,
	}, attrs...)
	e.logger().Info(msg, args...)
}

// itemScope is an item together with the session and agenda that own it.
type itemScope struct {
	session domain.Session
	agenda  domain.Agenda
	item    domain.AgendaItem
}

func (e Engine) loadSessionAgenda(ctx context.Context, tx *sql.Tx, sessionID string) (domain.Session, domain.Agenda, error) {
	s, err := e.Repo.GetSessionTx(ctx, tx, sessionID)
	if err != nil {
		return s, domain.Agenda{}, notFound(err, "session", sessionID)
	}
	a, err := e.Repo.GetAgendaBySessionTx(ctx, tx, sessionID)
	if err != nil {
		return s, a, notFound(err, "agenda of session", sessionID)
	}
	return s, a, nil
}

func (e Engine) loadItemScope(ctx context.Context, tx *sql.Tx, sessionID, itemID string) (itemScope, error) {
	var sc itemScope
	var err error
	if sc.session, sc.agenda, err = e.loadSessionAgenda(ctx, tx, sessionID); err != nil {
		return sc, err
	}
	sc.item, err = e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return sc, notFound(err, "item", itemID)
	}
	if sc.item.AgendaID != sc.agenda.ID {
		return sc, NotFoundError{Kind: "item", ID: itemID}
	}
	return sc, nil
}

func requireInProgress(s domain.Session) error {
	if s.Status != domain.SessionInProgress {
		return invalid("session %s is %s; it must be in progress", s.ID, s.Status)
	}
	return nil
}

func requireOpen(s domain.Session) error {
	if s.Status.Terminal() {
		return invalid("session %s is %s and accepts no changes", s.ID, s.Status)
	}
	return nil
}

// requireNoOtherActive enforces one discussion or vote at a time per agenda.
func (e Engine) requireNoOtherActive(ctx context.Context, tx *sql.Tx, agendaID, itemID string) error {
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(agendaID))
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID != itemID && it.Status.Active() {
			return ValidationError{
				Message: fmt.Sprintf("item %s is %s; finish or suspend it first", it.ID, it.Status),
				Details: map[string]any{"active_item_id": it.ID},
			}
		}
	}
	return nil
}

func repoItems(agendaID string) repo.ItemFilters {
	return repo.ItemFilters{AgendaID: agendaID}
}

func (e Engine) saveItem(ctx context.Context, tx *sql.Tx, it *domain.AgendaItem) error {
	it.UpdatedAt = e.now()
	if err := e.Repo.UpdateItem(ctx, tx, *it); err != nil {
		return fmt.Errorf("update item %s: %w", it.ID, err)
	}
	return nil
}

func (e Engine) saveAgenda(ctx context.Context, tx *sql.Tx, a domain.Agenda) error {
	if err := e.Repo.UpdateAgenda(ctx, tx, a); err != nil {
		return fmt.Errorf("update agenda %s: %w", a.ID, err)
	}
	return nil
}

// recomputeTotal sums real time of finished items and accumulated time of the rest.
func (e Engine) recomputeTotal(ctx context.Context, tx *sql.Tx, a *domain.Agenda) error {
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return err
	}
	var total int64
	for _, it := range items {
		total += it.SpentSeconds()
	}
	a.TotalRealSeconds = total
	return nil
}

// membership is the full membership for the session's term, falling back to
// the configured seat count when no members are registered.
func (e Engine) membership(ctx context.Context, tx *sql.Tx, s domain.Session) (int, error) {
	n, err := e.Repo.CountMembershipTx(ctx, tx, s.TermID)
	if err != nil {
		return 0, fmt.Errorf("count membership: %w", err)
	}
	if n == 0 {
		n = e.cfg().Chamber.Seats
	}
	return n, nil
}

// GetSessionAgenda returns a session with its agenda and ordered items.
func (e Engine) GetSessionAgenda(ctx context.Context, sessionID string) (domain.SessionAgenda, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	defer tx.Rollback()
	view, err := e.sessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return view, err
	}
	return view, tx.Commit()
}

func (e Engine) sessionAgenda(ctx context.Context, tx *sql.Tx, sessionID string) (domain.SessionAgenda, error) {
	s, a, err := e.loadSessionAgenda(ctx, tx, sessionID)
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	items, err := e.Repo.ListItemsTx(ctx, tx, repoItems(a.ID))
	if err != nil {
		return domain.SessionAgenda{}, err
	}
	return domain.SessionAgenda{Session: s, Agenda: a, Items: items}, nil
}

func isUniqueViolation(err error) bool {
	var target interface{ Code() int }
	if errors.As(err, &target) {
		// SQLITE_CONSTRAINT_UNIQUE and SQLITE_CONSTRAINT_PRIMARYKEY
		if target.Code() == 2067 || target.Code() == 1555 {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
