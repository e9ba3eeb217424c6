package days

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/daybook/internal/inventory"
	"github.com/odyssey-erp/daybook/internal/platform/db"
	"github.com/odyssey-erp/daybook/internal/reconcile"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists daily records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// TxRepository exposes the locked write path of the day lifecycle.
type TxRepository interface {
	LockOpenPointer(ctx context.Context) (int64, error)
	SetOpenPointer(ctx context.Context, dayID int64) error
	InsertDay(ctx context.Context, rec DailyRecord) (DailyRecord, error)
	LockDay(ctx context.Context, id int64) (DailyRecord, error)
	MarkClosed(ctx context.Context, rec DailyRecord) error
	UpdateDay(ctx context.Context, rec DailyRecord) (DailyRecord, error)
	DeleteDay(ctx context.Context, id int64) error
	Inventory() inventory.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes fn inside a read-committed transaction. Every write path
// starts by locking the rows it depends on, so later statements observe
// movements that committed while the lock was awaited.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const dayColumns = `id, date, status, COALESCE(notes, ''), COALESCE(opened_by, 0), opened_at,
	COALESCE(closed_by, 0), closed_at, total_income, delivery_cost, spoilage_cost,
	items_sold, warning_count, critical_count, result, updated_at`

func scanDay(row pgx.Row) (DailyRecord, error) {
	var rec DailyRecord
	var closedAt pgtype.Timestamptz
	var result []byte
	err := row.Scan(&rec.ID, &rec.Date, &rec.Status, &rec.Notes, &rec.OpenedBy, &rec.OpenedAt,
		&rec.ClosedBy, &closedAt, &rec.TotalIncome, &rec.DeliveryCost, &rec.SpoilageCost,
		&rec.ItemsSold, &rec.WarningCount, &rec.CriticalCount, &result, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyRecord{}, ErrDayNotFound
	}
	if err != nil {
		return DailyRecord{}, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	if len(result) > 0 {
		var res reconcile.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return DailyRecord{}, fmt.Errorf("days: decode stored result for day %d: %w", rec.ID, err)
		}
		rec.Result = &res
	}
	return rec, nil
}

func scanDays(rows pgx.Rows) ([]DailyRecord, error) {
	defer rows.Close()
	var out []DailyRecord
	for rows.Next() {
		rec, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetDay loads a daily record.
func (r *Repository) GetDay(ctx context.Context, id int64) (DailyRecord, error) {
	return scanDay(r.db.QueryRow(ctx, `SELECT `+dayColumns+` FROM daily_records WHERE id=$1`, id))
}

// GetOpenDay loads the record referenced by the open pointer.
func (r *Repository) GetOpenDay(ctx context.Context) (DailyRecord, error) {
	rec, err := scanDay(r.db.QueryRow(ctx, `SELECT `+dayColumns+` FROM daily_records
		WHERE id = (SELECT open_record_id FROM daybook_state WHERE id=1)`))
	if errors.Is(err, ErrDayNotFound) {
		return DailyRecord{}, ErrNoOpenDay
	}
	return rec, err
}

// LatestClosedBefore returns the most recent closed day strictly before date.
func (r *Repository) LatestClosedBefore(ctx context.Context, date time.Time) (DailyRecord, error) {
	return scanDay(r.db.QueryRow(ctx, `SELECT `+dayColumns+` FROM daily_records
		WHERE status='closed' AND date < $1 ORDER BY date DESC LIMIT 1`, pgtype.Date{Time: date, Valid: true}))
}

// ListDays returns records ordered by date descending.
func (r *Repository) ListDays(ctx context.Context, filter ListFilter) ([]DailyRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 366 {
		limit = 31
	}
	rows, err := r.db.Query(ctx, `SELECT `+dayColumns+` FROM daily_records
		WHERE ($1::date IS NULL OR date >= $1) AND ($2::date IS NULL OR date <= $2) AND ($3::text = '' OR status=$3)
		ORDER BY date DESC LIMIT $4 OFFSET $5`,
		pgtype.Date{Time: filter.From, Valid: !filter.From.IsZero()},
		pgtype.Date{Time: filter.To, Valid: !filter.To.IsZero()},
		string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return scanDays(rows)
}

// ListClosedBetween returns closed records within [from, to] ordered by date.
func (r *Repository) ListClosedBetween(ctx context.Context, from, to time.Time) ([]DailyRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dayColumns+` FROM daily_records
		WHERE status='closed' AND date BETWEEN $1 AND $2 ORDER BY date`,
		pgtype.Date{Time: from, Valid: true}, pgtype.Date{Time: to, Valid: true})
	if err != nil {
		return nil, err
	}
	return scanDays(rows)
}

func (t *txRepo) LockOpenPointer(ctx context.Context) (int64, error) {
	var id pgtype.Int8
	err := t.tx.QueryRow(ctx, `SELECT open_record_id FROM daybook_state WHERE id=1 FOR UPDATE`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := t.tx.Exec(ctx, `INSERT INTO daybook_state (id, open_record_id) VALUES (1, NULL) ON CONFLICT (id) DO NOTHING`); err != nil {
			return 0, err
		}
		return t.LockOpenPointer(ctx)
	}
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (t *txRepo) SetOpenPointer(ctx context.Context, dayID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE daybook_state SET open_record_id=$1 WHERE id=1`,
		pgtype.Int8{Int64: dayID, Valid: dayID != 0})
	return err
}

func (t *txRepo) InsertDay(ctx context.Context, rec DailyRecord) (DailyRecord, error) {
	out, err := scanDay(t.tx.QueryRow(ctx, `INSERT INTO daily_records (date, status, notes, opened_by, opened_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)
		RETURNING `+dayColumns,
		pgtype.Date{Time: rec.Date, Valid: true}, string(rec.Status), rec.Notes,
		pgtype.Int8{Int64: rec.OpenedBy, Valid: rec.OpenedBy != 0}, rec.OpenedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return DailyRecord{}, ErrDuplicateDate
	}
	return out, err
}

func (t *txRepo) LockDay(ctx context.Context, id int64) (DailyRecord, error) {
	return scanDay(t.tx.QueryRow(ctx, `SELECT `+dayColumns+` FROM daily_records WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) MarkClosed(ctx context.Context, rec DailyRecord) error {
	var result []byte
	if rec.Result != nil {
		var err error
		if result, err = json.Marshal(rec.Result); err != nil {
			return err
		}
	}
	tag, err := t.tx.Exec(ctx, `UPDATE daily_records
		SET status=$2, notes=NULLIF($3, ''), closed_by=$4, closed_at=$5, total_income=$6, delivery_cost=$7,
			spoilage_cost=$8, items_sold=$9, warning_count=$10, critical_count=$11, result=$12, updated_at=$5
		WHERE id=$1`,
		rec.ID, string(StatusClosed), rec.Notes, pgtype.Int8{Int64: rec.ClosedBy, Valid: rec.ClosedBy != 0},
		rec.ClosedAt, rec.TotalIncome, rec.DeliveryCost, rec.SpoilageCost, rec.ItemsSold,
		rec.WarningCount, rec.CriticalCount, result)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotFound
	}
	return nil
}

func (t *txRepo) UpdateDay(ctx context.Context, rec DailyRecord) (DailyRecord, error) {
	return scanDay(t.tx.QueryRow(ctx, `UPDATE daily_records
		SET notes=NULLIF($2, ''), total_income=$3, delivery_cost=$4, spoilage_cost=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+dayColumns,
		rec.ID, rec.Notes, rec.TotalIncome, rec.DeliveryCost, rec.SpoilageCost))
}

func (t *txRepo) DeleteDay(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `UPDATE daybook_state SET open_record_id=NULL WHERE open_record_id=$1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM daily_records WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotFound
	}
	return nil
}

func (t *txRepo) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}
