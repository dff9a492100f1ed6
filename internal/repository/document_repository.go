package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// DocumentRepo provides data access to the documents table.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo returns a DocumentRepo bound to db.
func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

const selectDocument = `SELECT id, applicant_id, document_name, status, version, created_at, updated_at FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.Document, error) {
	var d model.Document
	var status string
	err := row.Scan(&d.ID, &d.ApplicantID, &d.DocumentName, &status, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	d.Status = model.DocumentStatus(status)
	return d, err
}

// GetForUpdateTx loads a document and locks its row until tx ends.
func (r *DocumentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Document, error) {
	d, err := scanDocument(tx.QueryRowContext(ctx, selectDocument+` WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByApplicantTx returns an applicant's documents in insertion order.
func (r *DocumentRepo) ListByApplicantTx(ctx context.Context, tx *sql.Tx, applicantID uint64) ([]model.Document, error) {
	rows, err := tx.QueryContext(ctx, selectDocument+` WHERE applicant_id = ? ORDER BY id`, applicantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateTx inserts d and sets its ID and Version.
func (r *DocumentRepo) CreateTx(ctx context.Context, tx *sql.Tx, d *model.Document) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (applicant_id, document_name, status, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		d.ApplicantID, d.DocumentName, string(d.Status), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	d.Version = 1
	return nil
}

// SaveTx updates the status of d when the stored version matches.
func (r *DocumentRepo) SaveTx(ctx context.Context, tx *sql.Tx, d *model.Document) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(d.Status), d.UpdatedAt, d.ID, d.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %d: %w", d.ID, ErrStaleRecord)
	}
	d.Version++
	return nil
}
