package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// MasterRepo reads the program and applicant master data maintained by the
// masters and intake subsystems.  The engine never writes these tables.
type MasterRepo struct {
	db *sql.DB
}

// NewMasterRepo returns a MasterRepo bound to db.
func NewMasterRepo(db *sql.DB) *MasterRepo { return &MasterRepo{db: db} }

// ProgramTx loads a program.  Missing programs yield ErrNotFound.
func (r *MasterRepo) ProgramTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Program, error) {
	const q = `SELECT id, code, name, department_id, institution_code, academic_year,
	                  course_type, entry_type, admission_mode
	           FROM programs WHERE id = ?`
	var p model.Program
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Code, &p.Name, &p.DepartmentID, &p.InstitutionCode, &p.AcademicYear,
		&p.CourseType, &p.EntryType, &p.AdmissionMode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("program %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplicantTx loads an applicant.  Missing applicants yield ErrNotFound.
func (r *MasterRepo) ApplicantTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Applicant, error) {
	const q = `SELECT id, full_name, mobile, quota_type, program_id, allotment_number, created_at
	           FROM applicants WHERE id = ?`
	var a model.Applicant
	var quota string
	var allotment sql.NullString
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.FullName, &a.Mobile, &quota, &a.ProgramID, &allotment, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("applicant %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.QuotaType = model.QuotaType(quota)
	if allotment.Valid {
		s := allotment.String
		a.AllotmentNumber = &s
	}
	return &a, nil
}
