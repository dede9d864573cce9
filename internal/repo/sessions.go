package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"plenario/internal/domain"
)

const sessionColumns = `id,number,year,type,term_id,scheduled_at,location,status,started_at,finished_at,finalized,created_at`

func scanSession(row scanner) (domain.Session, error) {
	var s domain.Session
	var scheduledAt, createdAt string
	var location, startedAt, finishedAt sql.NullString
	var finalized int
	err := row.Scan(&s.ID, &s.Number, &s.Year, &s.Type, &s.TermID, &scheduledAt, &location, &s.Status, &startedAt, &finishedAt, &finalized, &createdAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Location = location.String
	s.Finalized = finalized == 1
	if s.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	if s.StartedAt, err = parseNullTime(startedAt); err != nil {
		return s, err
	}
	if s.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return s, err
	}
	return s, nil
}

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Number, s.Year, s.Type, s.TermID, formatTime(s.ScheduledAt), nullable(s.Location), s.Status,
		nullableTime(s.StartedAt), nullableTime(s.FinishedAt), boolInt(s.Finalized), formatTime(s.CreatedAt))
	return err
}

func (r Repo) UpdateSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status=?, started_at=?, finished_at=?, finalized=?, location=? WHERE id=?`,
		s.Status, nullableTime(s.StartedAt), nullableTime(s.FinishedAt), boolInt(s.Finalized), nullable(s.Location), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
}

func (r Repo) GetSessionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Session, error) {
	return scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
}

// FindSessionByNumber resolves the session-{number}-{year} slug.
func (r Repo) FindSessionByNumber(ctx context.Context, number, year int) (domain.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE number=? AND year=?`, number, year))
}

type SessionFilters struct {
	Status string
	Year   int
	Limit  int
}

func (r Repo) ListSessions(ctx context.Context, f SessionFilters) ([]domain.Session, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Year > 0 {
		clauses = append(clauses, "year=?")
		args = append(args, f.Year)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions ` + where + ` ORDER BY scheduled_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const agendaColumns = `id,session_id,status,current_item_id,total_real_seconds,published_at,created_at`

func scanAgenda(row scanner) (domain.Agenda, error) {
	var a domain.Agenda
	var currentItemID, publishedAt sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.SessionID, &a.Status, &currentItemID, &a.TotalRealSeconds, &publishedAt, &createdAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.CurrentItemID = stringPtr(currentItemID)
	if a.PublishedAt, err = parseNullTime(publishedAt); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) InsertAgenda(ctx context.Context, tx *sql.Tx, a domain.Agenda) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agendas(`+agendaColumns+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.SessionID, a.Status, nullableStringPtr(a.CurrentItemID), a.TotalRealSeconds, nullableTime(a.PublishedAt), formatTime(a.CreatedAt))
	return err
}

func (r Repo) UpdateAgenda(ctx context.Context, tx *sql.Tx, a domain.Agenda) error {
	res, err := tx.ExecContext(ctx, `UPDATE agendas SET status=?, current_item_id=?, total_real_seconds=?, published_at=? WHERE id=?`,
		a.Status, nullableStringPtr(a.CurrentItemID), a.TotalRealSeconds, nullableTime(a.PublishedAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAgendaBySession(ctx context.Context, sessionID string) (domain.Agenda, error) {
	return scanAgenda(r.DB.QueryRowContext(ctx, `SELECT `+agendaColumns+` FROM agendas WHERE session_id=?`, sessionID))
}

func (r Repo) GetAgendaBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string) (domain.Agenda, error) {
	a, err := scanAgenda(tx.QueryRowContext(ctx, `SELECT `+agendaColumns+` FROM agendas WHERE session_id=?`, sessionID))
	if err != nil && err != ErrNotFound {
		return a, fmt.Errorf("load agenda of session %s: %w", sessionID, err)
	}
	return a, err
}
