package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/service"
)

// SQLStore is the MySQL implementation of service.Store.  Each RunInTx
// call maps to one database transaction; the quota counter update, the
// admission insert and the sequence upsert therefore commit or roll back
// together.
type SQLStore struct {
	db        *sql.DB
	Counters  *QuotaCounterRepo
	Masters   *MasterRepo
	Admission *AdmissionRepo
	Documents *DocumentRepo
	Sequences *SequenceRepo
}

// NewSQLStore wires the repositories around db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:        db,
		Counters:  NewQuotaCounterRepo(db),
		Masters:   NewMasterRepo(db),
		Admission: NewAdmissionRepo(db),
		Documents: NewDocumentRepo(db),
		Sequences: NewSequenceRepo(db),
	}
}

// DB exposes the underlying handle (health checks, migrations).
func (s *SQLStore) DB() *sql.DB { return s.db }

// RunInTx implements service.Store.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type sqlTx struct {
	s  *SQLStore
	tx *sql.Tx
}

func (t *sqlTx) TryIncrement(ctx context.Context, key ledger.Key) (model.QuotaCounter, bool, error) {
	return t.s.Counters.TryIncrementTx(ctx, t.tx, key)
}

func (t *sqlTx) Decrement(ctx context.Context, key ledger.Key) (model.QuotaCounter, bool, error) {
	return t.s.Counters.DecrementTx(ctx, t.tx, key)
}

func (t *sqlTx) Counters(ctx context.Context, programID uint64) ([]model.QuotaCounter, error) {
	return t.s.Counters.ListByProgramTx(ctx, t.tx, programID)
}

func (t *sqlTx) Program(ctx context.Context, id uint64) (*model.Program, error) {
	return t.s.Masters.ProgramTx(ctx, t.tx, id)
}

func (t *sqlTx) Applicant(ctx context.Context, id uint64) (*model.Applicant, error) {
	return t.s.Masters.ApplicantTx(ctx, t.tx, id)
}

func (t *sqlTx) Admission(ctx context.Context, id uint64) (*model.Admission, error) {
	return t.s.Admission.GetTx(ctx, t.tx, id)
}

func (t *sqlTx) AdmissionForUpdate(ctx context.Context, id uint64) (*model.Admission, error) {
	return t.s.Admission.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) AdmissionByApplicant(ctx context.Context, applicantID uint64) (*model.Admission, error) {
	return t.s.Admission.GetByApplicantTx(ctx, t.tx, applicantID)
}

func (t *sqlTx) CreateAdmission(ctx context.Context, a *model.Admission) error {
	return t.s.Admission.CreateTx(ctx, t.tx, a)
}

func (t *sqlTx) SaveAdmission(ctx context.Context, a *model.Admission) error {
	return t.s.Admission.SaveTx(ctx, t.tx, a)
}

func (t *sqlTx) NextSequence(ctx context.Context, scope string) (int64, error) {
	return t.s.Sequences.NextTx(ctx, t.tx, scope)
}

func (t *sqlTx) DocumentForUpdate(ctx context.Context, id uint64) (*model.Document, error) {
	return t.s.Documents.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) ListAdmissions(ctx context.Context, f service.AdmissionFilter) ([]model.Admission, error) {
	return t.s.Admission.ListTx(ctx, t.tx, f)
}

func (t *sqlTx) Documents(ctx context.Context, applicantID uint64) ([]model.Document, error) {
	return t.s.Documents.ListByApplicantTx(ctx, t.tx, applicantID)
}

func (t *sqlTx) CreateDocument(ctx context.Context, d *model.Document) error {
	return t.s.Documents.CreateTx(ctx, t.tx, d)
}

func (t *sqlTx) SaveDocument(ctx context.Context, d *model.Document) error {
	return t.s.Documents.SaveTx(ctx, t.tx, d)
}

var (
	_ service.Store = (*SQLStore)(nil)
	_ service.Store = (*MemoryStore)(nil)
	_ service.Tx    = (*sqlTx)(nil)
	_ service.Tx    = (*memTx)(nil)
)
