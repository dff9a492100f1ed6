// Package ledger enforces the fixed seat capacity of every (program, quota)
// pair.  Reservation is a single compare-and-increment performed by the
// CounterStore; the ledger never reads a remaining count and then writes
// based on it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/iliyamo/admission-allocation/internal/metrics"
	"github.com/iliyamo/admission-allocation/internal/model"
)

var (
	// ErrCapacityExceeded is returned by Reserve when no seat remains.
	ErrCapacityExceeded = errors.New("quota capacity exceeded")

	// ErrNothingToRelease is returned by Release when allocated is already zero.
	ErrNothingToRelease = errors.New("no allocated seat to release")

	// ErrCounterNotFound is returned when the program has no counter for the quota.
	ErrCounterNotFound = errors.New("quota counter not found")

	// ErrInvariantViolation signals allocated outside [0, total_seats].  It is
	// a defect in the atomicity guarantee, never a normal outcome.
	ErrInvariantViolation = errors.New("quota invariant violated")
)

// Key identifies one quota counter.
type Key struct {
	ProgramID uint64
	Quota     model.QuotaType
}

func (k Key) String() string {
	return strconv.FormatUint(k.ProgramID, 10) + ":" + string(k.Quota)
}

// CounterStore is the storage contract for quota counters.  TryIncrement and
// Decrement must each be one indivisible operation with respect to every
// other caller touching the same key.
type CounterStore interface {
	// TryIncrement adds one to allocated if allocated < total_seats.  It
	// returns the counter as it is after the attempt and whether the
	// increment happened.
	TryIncrement(ctx context.Context, key Key) (model.QuotaCounter, bool, error)

	// Decrement subtracts one from allocated if allocated > 0.
	Decrement(ctx context.Context, key Key) (model.QuotaCounter, bool, error)

	// Counters lists every counter of a program in quota display order.
	Counters(ctx context.Context, programID uint64) ([]model.QuotaCounter, error)
}

// Ledger applies reservation semantics and invariant checks on top of a
// CounterStore.  The store is passed on each call so that it can be bound
// to the caller's transaction.
type Ledger struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Ledger.  A nil logger is replaced by a no-op logger.
func New(log *zap.Logger, m *metrics.Metrics) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{log: log.Named("ledger"), metrics: m}
}

// Reserve consumes one seat of key.  It fails with ErrCapacityExceeded when
// the quota is full and performs no mutation in that case.
func (l *Ledger) Reserve(ctx context.Context, store CounterStore, key Key) (model.QuotaCounter, error) {
	c, ok, err := store.TryIncrement(ctx, key)
	if err != nil {
		return c, err
	}
	if err := l.verify(c); err != nil {
		return c, err
	}
	if !ok {
		return c, fmt.Errorf("%w: program %d quota %s (%d/%d allocated)",
			ErrCapacityExceeded, key.ProgramID, key.Quota, c.Allocated, c.TotalSeats)
	}
	l.log.Debug("seat reserved",
		zap.Uint64("program_id", key.ProgramID),
		zap.String("quota", string(key.Quota)),
		zap.Int("remaining", c.Remaining()),
	)
	return c, nil
}

// Release returns one seat of key to the pool.
func (l *Ledger) Release(ctx context.Context, store CounterStore, key Key) (model.QuotaCounter, error) {
	c, ok, err := store.Decrement(ctx, key)
	if err != nil {
		return c, err
	}
	if err := l.verify(c); err != nil {
		return c, err
	}
	if !ok {
		return c, fmt.Errorf("%w: program %d quota %s", ErrNothingToRelease, key.ProgramID, key.Quota)
	}
	l.log.Debug("seat released",
		zap.Uint64("program_id", key.ProgramID),
		zap.String("quota", string(key.Quota)),
		zap.Int("remaining", c.Remaining()),
	)
	return c, nil
}

// Counters returns the program's counters after verifying each of them.
func (l *Ledger) Counters(ctx context.Context, store CounterStore, programID uint64) ([]model.QuotaCounter, error) {
	counters, err := store.Counters(ctx, programID)
	if err != nil {
		return nil, err
	}
	for _, c := range counters {
		if err := l.verify(c); err != nil {
			return counters, err
		}
	}
	return counters, nil
}

// verify checks 0 <= allocated <= total_seats.  A violation is logged at
// error level and counted; it is never silently tolerated.
func (l *Ledger) verify(c model.QuotaCounter) error {
	pid := strconv.FormatUint(c.ProgramID, 10)
	if c.Consistent() {
		l.metrics.SetRemaining(pid, string(c.QuotaType), c.Remaining())
		return nil
	}
	l.metrics.IncInvariantViolation()
	l.log.Error("quota invariant violated",
		zap.Uint64("program_id", c.ProgramID),
		zap.String("quota", string(c.QuotaType)),
		zap.Int("allocated", c.Allocated),
		zap.Int("total_seats", c.TotalSeats),
	)
	return fmt.Errorf("%w: program %d quota %s allocated=%d total=%d",
		ErrInvariantViolation, c.ProgramID, c.QuotaType, c.Allocated, c.TotalSeats)
}
