package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/admission-allocation/internal/metrics"
	"github.com/iliyamo/admission-allocation/internal/model"
)

func newMatrixStore(t *testing.T) *MemoryCounters {
	t.Helper()
	store := NewMemoryCounters()
	require.NoError(t, store.DefineMatrix(model.SeatMatrix{
		ProgramID:          7,
		TotalIntake:        100,
		KCETSeats:          60,
		COMEDKSeats:        20,
		ManagementSeats:    20,
		SupernumerarySeats: 5,
	}))
	return store
}

func TestLedger_ReserveUntilFull(t *testing.T) {
	ctx := context.Background()
	store := newMatrixStore(t)
	l := New(nil, nil)
	key := Key{ProgramID: 7, Quota: model.QuotaKCET}

	for i := 0; i < 60; i++ {
		_, err := l.Reserve(ctx, store, key)
		require.NoError(t, err, "reservation %d", i+1)
	}

	c, err := l.Reserve(ctx, store, key)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 60, c.Allocated)

	counters, err := l.Counters(ctx, store, 7)
	require.NoError(t, err)
	require.Len(t, counters, 4)
	assert.Equal(t, model.QuotaKCET, counters[0].QuotaType)
	assert.Equal(t, 0, counters[0].Remaining())
	assert.Equal(t, 20, counters[1].Remaining())
	assert.Equal(t, model.QuotaSupernumerary, counters[3].QuotaType)
}

func TestLedger_Release(t *testing.T) {
	ctx := context.Background()
	store := newMatrixStore(t)
	l := New(nil, nil)
	key := Key{ProgramID: 7, Quota: model.QuotaManagement}

	t.Run("release on empty quota fails", func(t *testing.T) {
		_, err := l.Release(ctx, store, key)
		require.ErrorIs(t, err, ErrNothingToRelease)
	})

	t.Run("release returns the seat", func(t *testing.T) {
		_, err := l.Reserve(ctx, store, key)
		require.NoError(t, err)
		c, err := l.Release(ctx, store, key)
		require.NoError(t, err)
		assert.Equal(t, 0, c.Allocated)
		assert.Equal(t, 20, c.Remaining())
	})
}

func TestLedger_UnknownCounter(t *testing.T) {
	l := New(nil, nil)
	_, err := l.Reserve(context.Background(), NewMemoryCounters(), Key{ProgramID: 1, Quota: model.QuotaKCET})
	require.ErrorIs(t, err, ErrCounterNotFound)
}

func TestLedger_ZeroCapacityQuota(t *testing.T) {
	store := NewMemoryCounters()
	key := Key{ProgramID: 3, Quota: model.QuotaSupernumerary}
	require.NoError(t, store.Define(key, 0))

	_, err := New(nil, nil).Reserve(context.Background(), store, key)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestLedger_LastSeatRace(t *testing.T) {
	ctx := context.Background()
	const callers = 50

	store := NewMemoryCounters()
	key := Key{ProgramID: 9, Quota: model.QuotaCOMEDK}
	require.NoError(t, store.Define(key, 1))
	l := New(nil, nil)

	var wins, full atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Reserve(ctx, store, key)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one caller gets the last seat")
	assert.Equal(t, int32(callers-1), full.Load())
}

func TestLedger_ConcurrentStress(t *testing.T) {
	ctx := context.Background()
	store := newMatrixStore(t)
	l := New(nil, nil)

	const goroutines = 64
	const attemptsPerGoroutine = 10

	var wins sync.Map
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		q := model.QuotaTypes[i%len(model.QuotaTypes)]
		go func() {
			defer wg.Done()
			for j := 0; j < attemptsPerGoroutine; j++ {
				if _, err := l.Reserve(ctx, store, Key{ProgramID: 7, Quota: q}); err == nil {
					v, _ := wins.LoadOrStore(q, new(atomic.Int32))
					v.(*atomic.Int32).Add(1)
				}
			}
		}()
	}
	wg.Wait()

	counters, err := l.Counters(ctx, store, 7)
	require.NoError(t, err)
	sum := 0
	for _, c := range counters {
		assert.True(t, c.Consistent(), "%s: allocated=%d total=%d", c.QuotaType, c.Allocated, c.TotalSeats)
		assert.Equal(t, c.TotalSeats, c.Allocated, "%s should be full after 160 attempts", c.QuotaType)
		v, _ := wins.Load(c.QuotaType)
		assert.Equal(t, int32(c.Allocated), v.(*atomic.Int32).Load())
		sum += c.Allocated
	}
	assert.LessOrEqual(t, sum, 100+5, "allocations never exceed total intake plus supernumerary")
}

// brokenStore reports a counter that has overrun its capacity.
type brokenStore struct{}

func (brokenStore) TryIncrement(context.Context, Key) (model.QuotaCounter, bool, error) {
	return model.QuotaCounter{ProgramID: 1, QuotaType: model.QuotaKCET, TotalSeats: 2, Allocated: 3}, true, nil
}

func (brokenStore) Decrement(context.Context, Key) (model.QuotaCounter, bool, error) {
	return model.QuotaCounter{ProgramID: 1, QuotaType: model.QuotaKCET, TotalSeats: 2, Allocated: -1}, true, nil
}

func (brokenStore) Counters(context.Context, uint64) ([]model.QuotaCounter, error) {
	return []model.QuotaCounter{{ProgramID: 1, QuotaType: model.QuotaKCET, TotalSeats: 2, Allocated: 3}}, nil
}

func TestLedger_InvariantViolationIsReported(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New(prometheus.NewRegistry())
	l := New(zap.New(core), m)
	ctx := context.Background()
	key := Key{ProgramID: 1, Quota: model.QuotaKCET}

	_, err := l.Reserve(ctx, brokenStore{}, key)
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = l.Release(ctx, brokenStore{}, key)
	require.ErrorIs(t, err, ErrInvariantViolation)
	_, err = l.Counters(ctx, brokenStore{}, 1)
	require.ErrorIs(t, err, ErrInvariantViolation)

	assert.Equal(t, 3, logs.FilterMessage("quota invariant violated").Len())
	assert.Equal(t, float64(3), testutil.ToFloat64(m.InvariantViolations))
}
