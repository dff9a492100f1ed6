package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/service"
)

// AdmissionRepo provides data access to the admissions table.  Each
// applicant has at most one row (UNIQUE applicant_id) and confirmed
// admissions carry a UNIQUE admission_number.  Updates are optimistic:
// a save only applies when the stored version equals the caller's copy.
type AdmissionRepo struct {
	db *sql.DB
}

// NewAdmissionRepo returns an AdmissionRepo bound to db.
func NewAdmissionRepo(db *sql.DB) *AdmissionRepo { return &AdmissionRepo{db: db} }

const selectAdmission = `SELECT id, applicant_id, program_id, quota_type, seat_locked, seat_locked_at,
       fee_status, fee_paid_at, is_confirmed, confirmed_at, admission_number, version,
       created_at, updated_at
FROM admissions`

func scanAdmission(row rowScanner) (*model.Admission, error) {
	var (
		a                             model.Admission
		quota, fee                    string
		lockedAt, paidAt, confirmedAt sql.NullTime
		number                        sql.NullString
	)
	err := row.Scan(&a.ID, &a.ApplicantID, &a.ProgramID, &quota, &a.SeatLocked, &lockedAt,
		&fee, &paidAt, &a.IsConfirmed, &confirmedAt, &number, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.QuotaType = model.QuotaType(quota)
	a.FeeStatus = model.FeeStatus(fee)
	a.SeatLockedAt = nullTime(lockedAt)
	a.FeePaidAt = nullTime(paidAt)
	a.ConfirmedAt = nullTime(confirmedAt)
	if number.Valid {
		s := number.String
		a.AdmissionNumber = &s
	}
	return &a, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *AdmissionRepo) get(ctx context.Context, tx *sql.Tx, where string, arg uint64) (*model.Admission, error) {
	a, err := scanAdmission(tx.QueryRowContext(ctx, selectAdmission+" "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetTx loads an admission by id.
func (r *AdmissionRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Admission, error) {
	a, err := r.get(ctx, tx, "WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("admission %d: %w", id, err)
	}
	return a, nil
}

// GetForUpdateTx loads an admission and locks its row until tx ends.
func (r *AdmissionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Admission, error) {
	a, err := r.get(ctx, tx, "WHERE id = ? FOR UPDATE", id)
	if err != nil {
		return nil, fmt.Errorf("admission %d: %w", id, err)
	}
	return a, nil
}

// GetByApplicantTx loads the admission of an applicant.
func (r *AdmissionRepo) GetByApplicantTx(ctx context.Context, tx *sql.Tx, applicantID uint64) (*model.Admission, error) {
	a, err := r.get(ctx, tx, "WHERE applicant_id = ?", applicantID)
	if err != nil {
		return nil, fmt.Errorf("admission for applicant %d: %w", applicantID, err)
	}
	return a, nil
}

// stageConditions maps a derived lifecycle stage to its column predicate.
var stageConditions = map[lifecycle.Stage]string{
	lifecycle.StageUnallocated: "seat_locked = 0",
	lifecycle.StageSeatLocked:  "seat_locked = 1 AND is_confirmed = 0 AND fee_status <> 'Paid'",
	lifecycle.StageFeePaid:     "seat_locked = 1 AND is_confirmed = 0 AND fee_status = 'Paid'",
	lifecycle.StageConfirmed:   "seat_locked = 1 AND is_confirmed = 1",
}

// ListTx returns admissions matching f ordered by id.
func (r *AdmissionRepo) ListTx(ctx context.Context, tx *sql.Tx, f service.AdmissionFilter) ([]model.Admission, error) {
	where := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.ProgramID != 0 {
		where = append(where, "program_id = ?")
		args = append(args, f.ProgramID)
	}
	if f.Stage != "" {
		cond, ok := stageConditions[f.Stage]
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", f.Stage)
		}
		where = append(where, cond)
	}
	query := selectAdmission + " WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Admission, 0)
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateTx inserts a new admission and sets its ID and Version.  A second
// admission for the same applicant yields ErrConflict.
func (r *AdmissionRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Admission) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO admissions (applicant_id, program_id, quota_type, seat_locked, seat_locked_at,
		                        fee_status, fee_paid_at, is_confirmed, confirmed_at, admission_number,
		                        version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.ApplicantID, a.ProgramID, string(a.QuotaType), a.SeatLocked, a.SeatLockedAt,
		string(a.FeeStatus), a.FeePaidAt, a.IsConfirmed, a.ConfirmedAt, a.AdmissionNumber,
		a.CreatedAt, a.UpdatedAt,
	)
	if isDuplicate(err) {
		return fmt.Errorf("admission for applicant %d: %w", a.ApplicantID, ErrConflict)
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.Version = 1
	return nil
}

// SaveTx writes the mutable lifecycle columns when the stored version
// matches a.Version, then bumps a.Version.
func (r *AdmissionRepo) SaveTx(ctx context.Context, tx *sql.Tx, a *model.Admission) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE admissions
		SET fee_status = ?, fee_paid_at = ?, is_confirmed = ?, confirmed_at = ?,
		    admission_number = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(a.FeeStatus), a.FeePaidAt, a.IsConfirmed, a.ConfirmedAt,
		a.AdmissionNumber, a.UpdatedAt, a.ID, a.Version,
	)
	if isDuplicate(err) {
		return fmt.Errorf("admission %d number: %w", a.ID, ErrConflict)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetTx(ctx, tx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("admission %d: %w", a.ID, ErrStaleRecord)
	}
	a.Version++
	return nil
}
