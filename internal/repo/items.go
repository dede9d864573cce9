package repo

import (
	"context"
	"database/sql"
	"strings"

	"plenario/internal/domain"
)

const itemColumns = `id,agenda_id,section,rank,title,matter_id,action_type,status,started_at,accumulated_seconds,real_time_seconds,finalized_at,notes,current_round,final_rounds,round1_result,round2_result,interstitial,interstitial_until,hold_requested_by,hold_requested_at,hold_due_at,created_at,updated_at`

// sectionOrder sorts items by the fixed session section order, then rank.
const sectionOrder = `CASE section WHEN 'expediente' THEN 0 WHEN 'ordem_do_dia' THEN 1 WHEN 'comunicacoes' THEN 2 WHEN 'honras' THEN 3 ELSE 4 END, rank ASC`

func scanItem(row scanner) (domain.AgendaItem, error) {
	var it domain.AgendaItem
	var matterID, startedAt, finalizedAt, notes, round1, round2, interstitialUntil, holdBy, holdAt, holdDue sql.NullString
	var realTime sql.NullInt64
	var interstitial int
	var createdAt, updatedAt string
	err := row.Scan(&it.ID, &it.AgendaID, &it.Section, &it.Rank, &it.Title, &matterID, &it.ActionType, &it.Status,
		&startedAt, &it.AccumulatedSeconds, &realTime, &finalizedAt, &notes, &it.CurrentRound, &it.FinalRounds,
		&round1, &round2, &interstitial, &interstitialUntil, &holdBy, &holdAt, &holdDue, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.MatterID = stringPtr(matterID)
	it.Notes = notes.String
	it.Round1Result = stringPtr(round1)
	it.Round2Result = stringPtr(round2)
	it.Interstitial = interstitial == 1
	it.HoldRequestedBy = stringPtr(holdBy)
	if realTime.Valid {
		v := realTime.Int64
		it.RealTimeSeconds = &v
	}
	if it.StartedAt, err = parseNullTime(startedAt); err != nil {
		return it, err
	}
	if it.FinalizedAt, err = parseNullTime(finalizedAt); err != nil {
		return it, err
	}
	if it.InterstitialUntil, err = parseNullTime(interstitialUntil); err != nil {
		return it, err
	}
	if it.HoldRequestedAt, err = parseNullTime(holdAt); err != nil {
		return it, err
	}
	if it.HoldDueAt, err = parseNullTime(holdDue); err != nil {
		return it, err
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return it, err
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return it, err
	}
	return it, nil
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.AgendaItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agenda_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.AgendaID, it.Section, it.Rank, it.Title, nullableStringPtr(it.MatterID), it.ActionType, it.Status,
		nullableTime(it.StartedAt), it.AccumulatedSeconds, nullableInt64Ptr(it.RealTimeSeconds), nullableTime(it.FinalizedAt), nullable(it.Notes),
		it.CurrentRound, it.FinalRounds, nullableStringPtr(it.Round1Result), nullableStringPtr(it.Round2Result), boolInt(it.Interstitial),
		nullableTime(it.InterstitialUntil), nullableStringPtr(it.HoldRequestedBy), nullableTime(it.HoldRequestedAt), nullableTime(it.HoldDueAt),
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	return err
}

func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, it domain.AgendaItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE agenda_items SET agenda_id=?, section=?, rank=?, title=?, status=?, started_at=?, accumulated_seconds=?, real_time_seconds=?, finalized_at=?, notes=?,
current_round=?, final_rounds=?, round1_result=?, round2_result=?, interstitial=?, interstitial_until=?, hold_requested_by=?, hold_requested_at=?, hold_due_at=?, updated_at=? WHERE id=?`,
		it.AgendaID, it.Section, it.Rank, it.Title, it.Status, nullableTime(it.StartedAt), it.AccumulatedSeconds, nullableInt64Ptr(it.RealTimeSeconds), nullableTime(it.FinalizedAt), nullable(it.Notes),
		it.CurrentRound, it.FinalRounds, nullableStringPtr(it.Round1Result), nullableStringPtr(it.Round2Result), boolInt(it.Interstitial), nullableTime(it.InterstitialUntil),
		nullableStringPtr(it.HoldRequestedBy), nullableTime(it.HoldRequestedAt), nullableTime(it.HoldDueAt), formatTime(it.UpdatedAt), it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.AgendaItem, error) {
	return scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM agenda_items WHERE id=?`, id))
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.AgendaItem, error) {
	return scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM agenda_items WHERE id=?`, id))
}

type ItemFilters struct {
	AgendaID     string
	Status       string
	Section      string
	MatterID     string
	Interstitial bool
}

func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.AgendaItem, error) {
	return listItems(ctx, r.DB, f)
}

func (r Repo) ListItemsTx(ctx context.Context, tx *sql.Tx, f ItemFilters) ([]domain.AgendaItem, error) {
	return listItems(ctx, tx, f)
}

func listItems(ctx context.Context, q querier, f ItemFilters) ([]domain.AgendaItem, error) {
	var clauses []string
	var args []any
	if f.AgendaID != "" {
		clauses = append(clauses, "agenda_id=?")
		args = append(args, f.AgendaID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Section != "" {
		clauses = append(clauses, "section=?")
		args = append(args, f.Section)
	}
	if f.MatterID != "" {
		clauses = append(clauses, "matter_id=?")
		args = append(args, f.MatterID)
	}
	if f.Interstitial {
		clauses = append(clauses, "interstitial=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := q.QueryContext(ctx, `SELECT `+itemColumns+` FROM agenda_items `+where+` ORDER BY `+sectionOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AgendaItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// NextRank returns the rank a new item appended to the section gets.
func (r Repo) NextRank(ctx context.Context, tx *sql.Tx, agendaID string, section domain.Section) (int, error) {
	var max int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(rank),0) FROM agenda_items WHERE agenda_id=? AND section=?`, agendaID, section).Scan(&max)
	return max + 1, err
}
