package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/daybook/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service and by the
// day lifecycle when counts are written.
type TxRepository interface {
	LockDayOpen(ctx context.Context, dayID int64) error
	InsertEvent(ctx context.Context, evt Event) (Event, error)
	ReplaceSnapshots(ctx context.Context, dayID int64, kind SnapshotKind, snaps []Snapshot) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds inventory writes to a transaction owned by the caller.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("inventory: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListEvents returns the events of a day in recording order.
func (r *Repository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	return listEvents(ctx, r.pool, filter)
}

// ListSnapshots returns every snapshot of a day ordered by ingredient and kind.
func (r *Repository) ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error) {
	return listSnapshots(ctx, r.pool, dayID)
}

func (r *txRepository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	return listEvents(ctx, r.tx, filter)
}

func (r *txRepository) ListSnapshots(ctx context.Context, dayID int64) ([]Snapshot, error) {
	return listSnapshots(ctx, r.tx, dayID)
}

func listEvents(ctx context.Context, q dbtx, filter EventFilter) ([]Event, error) {
	rows, err := q.Query(ctx, `SELECT id, day_id, ingredient_id, kind, COALESCE(direction, ''), quantity, price,
			COALESCE(reason, ''), ref, recorded_at, COALESCE(created_by, 0)
		FROM inventory_events
		WHERE day_id=$1 AND ($2::bigint = 0 OR ingredient_id=$2) AND ($3::text = '' OR kind=$3)
		ORDER BY recorded_at, id`, filter.DayID, filter.IngredientID, string(filter.Kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var evt Event
		var ref pgtype.UUID
		if err := rows.Scan(&evt.ID, &evt.DayID, &evt.IngredientID, &evt.Kind, &evt.Direction, &evt.Quantity, &evt.Price,
			&evt.Reason, &ref, &evt.RecordedAt, &evt.CreatedBy); err != nil {
			return nil, err
		}
		evt.Ref = uuidString(ref)
		events = append(events, evt)
	}
	return events, rows.Err()
}

func listSnapshots(ctx context.Context, q dbtx, dayID int64) ([]Snapshot, error) {
	rows, err := q.Query(ctx, `SELECT day_id, ingredient_id, kind, quantity, recorded_at
		FROM inventory_snapshots WHERE day_id=$1 ORDER BY ingredient_id, kind`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.DayID, &s.IngredientID, &s.Kind, &s.Quantity, &s.RecordedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// LockDayOpen takes a share lock on the daily record so a concurrent close waits
// for in-flight events, then verifies the day is still open.
func (r *txRepository) LockDayOpen(ctx context.Context, dayID int64) error {
	var status string
	err := r.tx.QueryRow(ctx, `SELECT status FROM daily_records WHERE id=$1 FOR SHARE`, dayID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDayNotFound
	}
	if err != nil {
		return err
	}
	if status != "open" {
		return ErrDayNotOpen
	}
	return nil
}

func (r *txRepository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_events
			(day_id, ingredient_id, kind, direction, quantity, price, reason, ref, recorded_at, created_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $10)
		RETURNING id`,
		evt.DayID, evt.IngredientID, string(evt.Kind), string(evt.Direction), evt.Quantity, evt.Price, evt.Reason,
		pgtype.UUID{Bytes: parseUUID(evt.Ref), Valid: evt.Ref != ""},
		pgtype.Timestamptz{Time: evt.RecordedAt, Valid: true},
		pgtype.Int8{Int64: evt.CreatedBy, Valid: evt.CreatedBy != 0},
	).Scan(&evt.ID)
	return evt, err
}

func (r *txRepository) ReplaceSnapshots(ctx context.Context, dayID int64, kind SnapshotKind, snaps []Snapshot) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM inventory_snapshots WHERE day_id=$1 AND kind=$2`, dayID, string(kind)); err != nil {
		return err
	}
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(`INSERT INTO inventory_snapshots (day_id, ingredient_id, kind, quantity, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
			dayID, s.IngredientID, string(kind), s.Quantity, pgtype.Timestamptz{Time: s.RecordedAt, Valid: true})
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func parseUUID(s string) [16]byte {
	if s == "" {
		return [16]byte{}
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}
	}
	return id
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
