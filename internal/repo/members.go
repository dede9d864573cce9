package repo

import (
	"context"
	"database/sql"

	"plenario/internal/domain"
)

func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(id,name,term_id,active,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Name, m.TermID, boolInt(m.Active), formatTime(m.CreatedAt))
	return err
}

func (r Repo) SetMemberActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE members SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMember(row scanner) (domain.Member, error) {
	var m domain.Member
	var active int
	var createdAt string
	err := row.Scan(&m.ID, &m.Name, &m.TermID, &active, &createdAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Active = active == 1
	m.CreatedAt, err = parseTime(createdAt)
	return m, err
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id string) (domain.Member, error) {
	return scanMember(tx.QueryRowContext(ctx, `SELECT id,name,term_id,active,created_at FROM members WHERE id=?`, id))
}

func (r Repo) ListMembers(ctx context.Context, termID string) ([]domain.Member, error) {
	query := `SELECT id,name,term_id,active,created_at FROM members`
	var args []any
	if termID != "" {
		query += ` WHERE term_id=?`
		args = append(args, termID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY name ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountMembershipTx counts the active members of a legislative term. An
// empty term counts every active member.
func (r Repo) CountMembershipTx(ctx context.Context, tx *sql.Tx, termID string) (int, error) {
	var n int
	var err error
	if termID == "" {
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE active=1`).Scan(&n)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE active=1 AND term_id=?`, termID).Scan(&n)
	}
	return n, err
}

func (r Repo) UpsertAttendance(ctx context.Context, tx *sql.Tx, a domain.Attendance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attendance(session_id,member_id,present,recorded_at) VALUES (?,?,?,?)
ON CONFLICT(session_id,member_id) DO UPDATE SET present=excluded.present, recorded_at=excluded.recorded_at`,
		a.SessionID, a.MemberID, boolInt(a.Present), formatTime(a.RecordedAt))
	return err
}

func (r Repo) GetAttendanceTx(ctx context.Context, tx *sql.Tx, sessionID, memberID string) (domain.Attendance, error) {
	var a domain.Attendance
	var present int
	var recordedAt string
	err := tx.QueryRowContext(ctx, `SELECT session_id,member_id,present,recorded_at FROM attendance WHERE session_id=? AND member_id=?`, sessionID, memberID).
		Scan(&a.SessionID, &a.MemberID, &present, &recordedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Present = present == 1
	a.RecordedAt, err = parseTime(recordedAt)
	return a, err
}

func (r Repo) ListAttendance(ctx context.Context, sessionID string) ([]domain.Attendance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT session_id,member_id,present,recorded_at FROM attendance WHERE session_id=? ORDER BY member_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attendance
	for rows.Next() {
		var a domain.Attendance
		var present int
		var recordedAt string
		if err := rows.Scan(&a.SessionID, &a.MemberID, &present, &recordedAt); err != nil {
			return nil, err
		}
		a.Present = present == 1
		if a.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountPresentTx(ctx context.Context, tx *sql.Tx, sessionID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE session_id=? AND present=1`, sessionID).Scan(&n)
	return n, err
}

// UpsertBallot records a vote; a member voting again in the same round replaces the value.
func (r Repo) UpsertBallot(ctx context.Context, tx *sql.Tx, b domain.Ballot) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ballots(id,session_id,matter_id,member_id,round,value,cast_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(matter_id,member_id,round) DO UPDATE SET value=excluded.value, cast_at=excluded.cast_at, session_id=excluded.session_id`,
		b.ID, b.SessionID, b.MatterID, b.MemberID, b.Round, b.Value, formatTime(b.CastAt))
	return err
}

func (r Repo) ListBallotsTx(ctx context.Context, tx *sql.Tx, matterID string, round int) ([]domain.Ballot, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,session_id,matter_id,member_id,round,value,cast_at FROM ballots WHERE matter_id=? AND round=? ORDER BY member_id`, matterID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ballot
	for rows.Next() {
		var b domain.Ballot
		var castAt string
		if err := rows.Scan(&b.ID, &b.SessionID, &b.MatterID, &b.MemberID, &b.Round, &b.Value, &castAt); err != nil {
			return nil, err
		}
		if b.CastAt, err = parseTime(castAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
