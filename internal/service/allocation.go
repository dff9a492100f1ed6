// Package service is the orchestration façade of the admission engine.  It
// validates requests, drives the quota ledger and the admission state
// machine inside one store transaction, and publishes lifecycle events once
// the transaction has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/metrics"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/queue"
)

// QuotaPolicy decides what happens when the requested quota differs from
// the quota the applicant declared at intake.
type QuotaPolicy string

const (
	// QuotaPolicyStrict rejects the allocation with ErrQuotaMismatch.
	QuotaPolicyStrict QuotaPolicy = "strict"
	// QuotaPolicyOverride accepts the requested quota.
	QuotaPolicyOverride QuotaPolicy = "override"
)

// ParseQuotaPolicy maps a config value to a policy.  Empty means strict.
func ParseQuotaPolicy(s string) (QuotaPolicy, error) {
	switch QuotaPolicy(s) {
	case "", QuotaPolicyStrict:
		return QuotaPolicyStrict, nil
	case QuotaPolicyOverride:
		return QuotaPolicyOverride, nil
	}
	return "", fmt.Errorf("unknown quota policy %q", s)
}

// AllocationService wires the ledger, the state machine and the document
// checklist to a Store.
type AllocationService struct {
	store     Store
	ledger    *ledger.Ledger
	publisher Publisher
	log       *zap.Logger
	metrics   *metrics.Metrics
	policy    QuotaPolicy
	numbers   lifecycle.NumberFormat
	now       func() time.Time
}

// Option configures an AllocationService.
type Option func(*AllocationService)

func WithLogger(l *zap.Logger) Option       { return func(s *AllocationService) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *AllocationService) { s.metrics = m } }
func WithPublisher(p Publisher) Option      { return func(s *AllocationService) { s.publisher = p } }
func WithQuotaPolicy(p QuotaPolicy) Option  { return func(s *AllocationService) { s.policy = p } }
func WithClock(now func() time.Time) Option { return func(s *AllocationService) { s.now = now } }
func WithLedger(l *ledger.Ledger) Option    { return func(s *AllocationService) { s.ledger = l } }
func WithNumberFormat(f lifecycle.NumberFormat) Option {
	return func(s *AllocationService) { s.numbers = f }
}

// New returns a service over store.  Defaults: strict quota policy, no-op
// publisher, no-op logger, no metrics.
func New(store Store, opts ...Option) *AllocationService {
	if store == nil {
		panic("nil store passed to service.New")
	}
	s := &AllocationService{
		store:     store,
		publisher: nopPublisher{},
		log:       zap.NewNop(),
		policy:    QuotaPolicyStrict,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.New(s.log, s.metrics)
	}
	return s
}

// AllocateRequest asks for one seat of QuotaType in ProgramID for ApplicantID.
type AllocateRequest struct {
	ApplicantID uint64
	ProgramID   uint64
	QuotaType   model.QuotaType
}

func (r AllocateRequest) validate() error {
	switch {
	case r.ApplicantID == 0:
		return fmt.Errorf("%w: applicant_id is required", ErrValidation)
	case r.ProgramID == 0:
		return fmt.Errorf("%w: program_id is required", ErrValidation)
	case !r.QuotaType.Valid():
		return fmt.Errorf("%w: unknown quota_type %q", ErrValidation, r.QuotaType)
	}
	return nil
}

// Allocate locks a seat for the applicant.  The ledger reservation and the
// admission insert commit or roll back together.
func (s *AllocationService) Allocate(ctx context.Context, req AllocateRequest) (*model.Admission, error) {
	if err := req.validate(); err != nil {
		s.metrics.ObserveAllocation(string(req.QuotaType), outcome(err))
		return nil, err
	}

	var adm *model.Admission
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		applicant, err := tx.Applicant(ctx, req.ApplicantID)
		if err != nil {
			return notFound(err, "applicant %d", req.ApplicantID)
		}
		if _, err := tx.Program(ctx, req.ProgramID); err != nil {
			return notFound(err, "program %d", req.ProgramID)
		}
		if s.policy == QuotaPolicyStrict && applicant.QuotaType != req.QuotaType {
			return fmt.Errorf("%w: applicant %d declared %s, requested %s",
				ErrQuotaMismatch, applicant.ID, applicant.QuotaType, req.QuotaType)
		}

		existing, err := tx.AdmissionByApplicant(ctx, req.ApplicantID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: applicant %d holds admission %d", ErrAlreadyAllocated, req.ApplicantID, existing.ID)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		key := ledger.Key{ProgramID: req.ProgramID, Quota: req.QuotaType}
		if _, err := s.ledger.Reserve(ctx, tx, key); err != nil {
			switch {
			case errors.Is(err, ledger.ErrCapacityExceeded):
				return fmt.Errorf("%w: %w", ErrSeatUnavailable, err)
			case errors.Is(err, ledger.ErrCounterNotFound):
				return fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return err
		}

		a := lifecycle.NewSeatLock(req.ApplicantID, req.ProgramID, req.QuotaType, s.now())
		if err := tx.CreateAdmission(ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				// lost the race against a concurrent allocation for the same applicant
				return fmt.Errorf("%w: applicant %d", ErrAlreadyAllocated, req.ApplicantID)
			}
			return err
		}
		adm = a
		return nil
	})
	s.metrics.ObserveAllocation(string(req.QuotaType), outcome(err))
	if err != nil {
		s.logFailure("allocate", err,
			zap.Uint64("applicant_id", req.ApplicantID),
			zap.Uint64("program_id", req.ProgramID),
			zap.String("quota", string(req.QuotaType)),
		)
		return nil, err
	}

	s.log.Info("seat locked",
		zap.Uint64("admission_id", adm.ID),
		zap.Uint64("applicant_id", adm.ApplicantID),
		zap.Uint64("program_id", adm.ProgramID),
		zap.String("quota", string(adm.QuotaType)),
	)
	s.publish(ctx, queue.EventSeatLocked, adm)
	return adm, nil
}

// MarkFeePaid moves a SeatLocked admission to FeePaid.
func (s *AllocationService) MarkFeePaid(ctx context.Context, admissionID uint64) (*model.Admission, error) {
	adm, err := s.transition(ctx, "fee_paid", admissionID, func(tx Tx, a *model.Admission) error {
		return lifecycle.MarkFeePaid(a, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventFeePaid, adm)
	return adm, nil
}

// Confirm issues the admission number and marks the admission confirmed.
func (s *AllocationService) Confirm(ctx context.Context, admissionID uint64) (*model.Admission, error) {
	adm, err := s.transition(ctx, "confirmed", admissionID, func(tx Tx, a *model.Admission) error {
		// check first so a rejected confirmation never consumes a number
		if err := lifecycle.CanConfirm(a); err != nil {
			return err
		}
		p, err := tx.Program(ctx, a.ProgramID)
		if err != nil {
			return notFound(err, "program %d", a.ProgramID)
		}
		seq, err := tx.NextSequence(ctx, lifecycle.SequenceScope(a.ProgramID, a.QuotaType))
		if err != nil {
			return fmt.Errorf("issue admission number: %w", err)
		}
		number, err := s.numbers.Render(p, a.QuotaType, seq)
		if err != nil {
			return fmt.Errorf("issue admission number: %w", err)
		}
		return lifecycle.Confirm(a, number, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("admission confirmed",
		zap.Uint64("admission_id", adm.ID),
		zap.String("admission_number", *adm.AdmissionNumber),
	)
	s.publish(ctx, queue.EventConfirmed, adm)
	return adm, nil
}

// transition loads and locks an admission, applies fn and saves the result.
func (s *AllocationService) transition(ctx context.Context, name string, admissionID uint64, fn func(Tx, *model.Admission) error) (*model.Admission, error) {
	if admissionID == 0 {
		err := fmt.Errorf("%w: admission_id is required", ErrValidation)
		s.metrics.ObserveTransition(name, outcome(err))
		return nil, err
	}
	var adm *model.Admission
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		a, err := tx.AdmissionForUpdate(ctx, admissionID)
		if err != nil {
			return notFound(err, "admission %d", admissionID)
		}
		if err := fn(tx, a); err != nil {
			return err
		}
		if err := tx.SaveAdmission(ctx, a); err != nil {
			switch {
			case errors.Is(err, ErrStaleRecord):
				return fmt.Errorf("%w: admission %d changed concurrently", ErrInvalidTransition, admissionID)
			case errors.Is(err, ErrConflict):
				return fmt.Errorf("admission number collision for admission %d: %w", admissionID, err)
			}
			return err
		}
		adm = a
		return nil
	})
	s.metrics.ObserveTransition(name, outcome(err))
	if err != nil {
		s.logFailure(name, err, zap.Uint64("admission_id", admissionID))
		return nil, err
	}
	return adm, nil
}

// GetAdmission returns one admission.
func (s *AllocationService) GetAdmission(ctx context.Context, admissionID uint64) (*model.Admission, error) {
	if admissionID == 0 {
		return nil, fmt.Errorf("%w: admission_id is required", ErrValidation)
	}
	var adm *model.Admission
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		a, err := tx.Admission(ctx, admissionID)
		if err != nil {
			return notFound(err, "admission %d", admissionID)
		}
		adm = a
		return nil
	})
	return adm, err
}

// Page bounds for ListAdmissions.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ListAdmissions returns admissions matching f in ascending ID order.  A zero
// Limit means DefaultListLimit.
func (s *AllocationService) ListAdmissions(ctx context.Context, f AdmissionFilter) ([]model.Admission, error) {
	switch {
	case f.Limit < 0 || f.Limit > MaxListLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxListLimit)
	case f.Limit == 0:
		f.Limit = DefaultListLimit
	}
	if f.Stage != "" {
		st, err := lifecycle.ParseStage(string(f.Stage))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		f.Stage = st
	}
	var out []model.Admission
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if f.ProgramID != 0 {
			if _, err := tx.Program(ctx, f.ProgramID); err != nil {
				return notFound(err, "program %d", f.ProgramID)
			}
		}
		var err error
		out, err = tx.ListAdmissions(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Admission{}
	}
	return out, nil
}

// QuotaCounters lists the capacity ledger of a program.
func (s *AllocationService) QuotaCounters(ctx context.Context, programID uint64) ([]model.QuotaCounter, error) {
	if programID == 0 {
		return nil, fmt.Errorf("%w: program_id is required", ErrValidation)
	}
	var out []model.QuotaCounter
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.Program(ctx, programID); err != nil {
			return notFound(err, "program %d", programID)
		}
		counters, err := s.ledger.Counters(ctx, tx, programID)
		if err != nil {
			return err
		}
		if len(counters) == 0 {
			return fmt.Errorf("%w: no seat matrix for program %d", ErrNotFound, programID)
		}
		out = counters
		return nil
	})
	if err != nil {
		s.logFailure("quota_counters", err, zap.Uint64("program_id", programID))
		return nil, err
	}
	return out, nil
}

func (s *AllocationService) publish(ctx context.Context, t queue.EventType, adm *model.Admission) {
	ev := queue.NewAdmissionEvent(t, adm, ActorFrom(ctx), s.now())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("publish admission event failed",
			zap.String("event", string(t)),
			zap.Uint64("admission_id", adm.ID),
			zap.Error(err),
		)
	}
}

// logFailure logs expected outcomes at info and defects at error level.
func (s *AllocationService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if KindOf(err) == KindInternal {
		s.log.Error("operation failed", fields...)
		return
	}
	s.log.Info("operation rejected", append(fields, zap.String("kind", KindOf(err).String()))...)
}

// notFound normalises a store lookup error.  ErrNotFound is re-wrapped with
// the entity name; other errors pass through untouched.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
