package repository

import (
	"context"
	"database/sql"
)

// SequenceRepo issues monotonically increasing numbers per scope from the
// admission_sequences table.
type SequenceRepo struct {
	db *sql.DB
}

// NewSequenceRepo returns a SequenceRepo bound to db.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

// NextTx increments the scope's sequence and returns the new value.  The
// upsert locks the scope row until the transaction ends, so two
// confirmations in the same scope never draw the same value; a rolled back
// transaction gives its value back.
func (r *SequenceRepo) NextTx(ctx context.Context, tx *sql.Tx, scope string) (int64, error) {
	// LAST_INSERT_ID(expr) makes the driver report the new value as the insert id
	res, err := tx.ExecContext(ctx,
		`INSERT INTO admission_sequences (scope, last_value) VALUES (?, LAST_INSERT_ID(1))
		 ON DUPLICATE KEY UPDATE last_value = LAST_INSERT_ID(last_value + 1)`,
		scope,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
