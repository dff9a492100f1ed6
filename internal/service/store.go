package service

import (
	"context"

	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/queue"
)

// Store provides the transactional boundary of the engine.  RunInTx commits
// when fn returns nil and rolls back every mutation made through tx
// otherwise, so a seat reservation never outlives a failed admission insert.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction.  Missing
// rows are reported as ErrNotFound, unique-key violations as ErrConflict and
// version mismatches on save as ErrStaleRecord.
type Tx interface {
	ledger.CounterStore

	Program(ctx context.Context, id uint64) (*model.Program, error)
	Applicant(ctx context.Context, id uint64) (*model.Applicant, error)

	Admission(ctx context.Context, id uint64) (*model.Admission, error)
	// AdmissionForUpdate loads and locks the row until the transaction ends.
	AdmissionForUpdate(ctx context.Context, id uint64) (*model.Admission, error)
	AdmissionByApplicant(ctx context.Context, applicantID uint64) (*model.Admission, error)
	// CreateAdmission inserts a and sets its ID and Version.
	CreateAdmission(ctx context.Context, a *model.Admission) error
	// SaveAdmission writes a if its Version is current and bumps Version.
	SaveAdmission(ctx context.Context, a *model.Admission) error
	// ListAdmissions returns admissions matching f in ascending ID order.
	ListAdmissions(ctx context.Context, f AdmissionFilter) ([]model.Admission, error)

	// NextSequence returns the next value of a named, gap-tolerant sequence.
	NextSequence(ctx context.Context, scope string) (int64, error)

	DocumentForUpdate(ctx context.Context, id uint64) (*model.Document, error)
	Documents(ctx context.Context, applicantID uint64) ([]model.Document, error)
	CreateDocument(ctx context.Context, d *model.Document) error
	SaveDocument(ctx context.Context, d *model.Document) error
}

// AdmissionFilter selects admissions for ListAdmissions.  Zero fields match
// everything.  Results start after AfterID and hold at most Limit rows.
type AdmissionFilter struct {
	ProgramID uint64
	Stage     lifecycle.Stage
	AfterID   uint64
	Limit     int
}

// Match reports whether a passes the program and stage conditions.
func (f AdmissionFilter) Match(a *model.Admission) bool {
	if f.ProgramID != 0 && a.ProgramID != f.ProgramID {
		return false
	}
	if f.Stage != "" && lifecycle.StageOf(a) != f.Stage {
		return false
	}
	return a.ID > f.AfterID
}

// Publisher delivers lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev queue.AdmissionEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.AdmissionEvent) error { return nil }

type actorKey struct{}

// WithActor attaches the identity of the officer performing an operation.
// It is only used to annotate events and logs.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string)
	return s
}
