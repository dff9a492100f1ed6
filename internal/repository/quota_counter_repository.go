package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/model"
)

// QuotaCounterRepo persists the capacity ledger in quota_counters.  The
// reservation path is a single conditional UPDATE, so the row lock MySQL
// takes is held only from that statement to the end of the caller's
// transaction and no caller ever acts on a remaining count it read earlier.
type QuotaCounterRepo struct {
	db *sql.DB
}

// NewQuotaCounterRepo returns a QuotaCounterRepo bound to db.
func NewQuotaCounterRepo(db *sql.DB) *QuotaCounterRepo { return &QuotaCounterRepo{db: db} }

const selectCounter = `SELECT program_id, quota_type, total_seats, allocated FROM quota_counters`

// TryIncrementTx consumes one seat if one remains.
func (r *QuotaCounterRepo) TryIncrementTx(ctx context.Context, tx *sql.Tx, key ledger.Key) (model.QuotaCounter, bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE quota_counters SET allocated = allocated + 1
		 WHERE program_id = ? AND quota_type = ? AND allocated < total_seats`,
		key.ProgramID, string(key.Quota),
	)
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	return r.afterUpdate(ctx, tx, key, res)
}

// DecrementTx returns one seat if any is allocated.
func (r *QuotaCounterRepo) DecrementTx(ctx context.Context, tx *sql.Tx, key ledger.Key) (model.QuotaCounter, bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE quota_counters SET allocated = allocated - 1
		 WHERE program_id = ? AND quota_type = ? AND allocated > 0`,
		key.ProgramID, string(key.Quota),
	)
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	return r.afterUpdate(ctx, tx, key, res)
}

// afterUpdate reads the counter back inside the same transaction.  When no
// row was touched it distinguishes a full (or empty) counter from a missing one.
func (r *QuotaCounterRepo) afterUpdate(ctx context.Context, tx *sql.Tx, key ledger.Key, res sql.Result) (model.QuotaCounter, bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	c, err := r.getTx(ctx, tx, key)
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	return c, n == 1, nil
}

func (r *QuotaCounterRepo) getTx(ctx context.Context, tx *sql.Tx, key ledger.Key) (model.QuotaCounter, error) {
	var c model.QuotaCounter
	var quota string
	err := tx.QueryRowContext(ctx, selectCounter+` WHERE program_id = ? AND quota_type = ?`,
		key.ProgramID, string(key.Quota),
	).Scan(&c.ProgramID, &quota, &c.TotalSeats, &c.Allocated)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: program %d quota %s", ledger.ErrCounterNotFound, key.ProgramID, key.Quota)
	}
	c.QuotaType = model.QuotaType(quota)
	return c, err
}

// ListByProgramTx returns every counter of a program in display order.
func (r *QuotaCounterRepo) ListByProgramTx(ctx context.Context, tx *sql.Tx, programID uint64) ([]model.QuotaCounter, error) {
	rows, err := tx.QueryContext(ctx, selectCounter+`
		WHERE program_id = ?
		ORDER BY FIELD(quota_type, 'KCET', 'COMEDK', 'Management', 'Supernumerary')`, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QuotaCounter
	for rows.Next() {
		var c model.QuotaCounter
		var quota string
		if err := rows.Scan(&c.ProgramID, &quota, &c.TotalSeats, &c.Allocated); err != nil {
			return nil, err
		}
		c.QuotaType = model.QuotaType(quota)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SyncFromSeatMatrices creates the missing counters for every seat matrix.
// Existing counters are left untouched; seat matrices are never resized.
// It returns the number of counters created.
func (r *QuotaCounterRepo) SyncFromSeatMatrices(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO quota_counters (program_id, quota_type, total_seats, allocated)
		SELECT program_id, 'KCET', kcet_seats, 0 FROM seat_matrices
		UNION ALL SELECT program_id, 'COMEDK', comedk_seats, 0 FROM seat_matrices
		UNION ALL SELECT program_id, 'Management', management_seats, 0 FROM seat_matrices
		UNION ALL SELECT program_id, 'Supernumerary', supernumerary_seats, 0 FROM seat_matrices`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CounterDrift describes a counter whose materialised allocated value does
// not match the number of admissions holding a seat in that quota.
type CounterDrift struct {
	model.QuotaCounter
	Admissions int `json:"admissions"`
}

// Drift compares every counter with COUNT(admissions).  An empty result
// means the materialised ledger agrees with the admission rows.
func (r *QuotaCounterRepo) Drift(ctx context.Context) ([]CounterDrift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.program_id, q.quota_type, q.total_seats, q.allocated, COUNT(a.id)
		FROM quota_counters q
		LEFT JOIN admissions a ON a.program_id = q.program_id AND a.quota_type = q.quota_type AND a.seat_locked = 1
		GROUP BY q.program_id, q.quota_type, q.total_seats, q.allocated
		HAVING q.allocated <> COUNT(a.id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CounterDrift
	for rows.Next() {
		var d CounterDrift
		var quota string
		if err := rows.Scan(&d.ProgramID, &quota, &d.TotalSeats, &d.Allocated, &d.Admissions); err != nil {
			return nil, err
		}
		d.QuotaType = model.QuotaType(quota)
		out = append(out, d)
	}
	return out, rows.Err()
}
