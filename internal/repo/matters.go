package repo

import (
	"context"
	"database/sql"
	"strings"

	"plenario/internal/domain"
)

const matterColumns = `id,type,number,year,title,urgent,veto_override,status,vote_outcome,vote_result,voted_at,decided_session_id,read_session_id,read_at,created_at,updated_at`

func scanMatter(row scanner) (domain.Matter, error) {
	var m domain.Matter
	var urgent, veto int
	var outcome, result, votedAt, decidedSession, readSession, readAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.Type, &m.Number, &m.Year, &m.Title, &urgent, &veto, &m.Status, &outcome, &result, &votedAt,
		&decidedSession, &readSession, &readAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Urgent = urgent == 1
	m.VetoOverride = veto == 1
	m.VoteOutcome = stringPtr(outcome)
	m.VoteResult = stringPtr(result)
	m.DecidedSessionID = stringPtr(decidedSession)
	m.ReadSessionID = stringPtr(readSession)
	if m.VotedAt, err = parseNullTime(votedAt); err != nil {
		return m, err
	}
	if m.ReadAt, err = parseNullTime(readAt); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return m, err
	}
	return m, nil
}

func (r Repo) InsertMatter(ctx context.Context, tx *sql.Tx, m domain.Matter) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO matters(`+matterColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Type, m.Number, m.Year, m.Title, boolInt(m.Urgent), boolInt(m.VetoOverride), m.Status,
		nullableStringPtr(m.VoteOutcome), nullableStringPtr(m.VoteResult), nullableTime(m.VotedAt),
		nullableStringPtr(m.DecidedSessionID), nullableStringPtr(m.ReadSessionID), nullableTime(m.ReadAt),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	return err
}

func (r Repo) UpdateMatter(ctx context.Context, tx *sql.Tx, m domain.Matter) error {
	res, err := tx.ExecContext(ctx, `UPDATE matters SET title=?, urgent=?, veto_override=?, status=?, vote_outcome=?, vote_result=?, voted_at=?, decided_session_id=?, read_session_id=?, read_at=?, updated_at=? WHERE id=?`,
		m.Title, boolInt(m.Urgent), boolInt(m.VetoOverride), m.Status, nullableStringPtr(m.VoteOutcome), nullableStringPtr(m.VoteResult), nullableTime(m.VotedAt),
		nullableStringPtr(m.DecidedSessionID), nullableStringPtr(m.ReadSessionID), nullableTime(m.ReadAt), formatTime(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMatter(ctx context.Context, id string) (domain.Matter, error) {
	return scanMatter(r.DB.QueryRowContext(ctx, `SELECT `+matterColumns+` FROM matters WHERE id=?`, id))
}

func (r Repo) GetMatterTx(ctx context.Context, tx *sql.Tx, id string) (domain.Matter, error) {
	return scanMatter(tx.QueryRowContext(ctx, `SELECT `+matterColumns+` FROM matters WHERE id=?`, id))
}

type MatterFilters struct {
	Status string
	Type   string
	Limit  int
}

func (r Repo) ListMatters(ctx context.Context, f MatterFilters) ([]domain.Matter, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + matterColumns + ` FROM matters ` + where + ` ORDER BY year DESC, number DESC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
