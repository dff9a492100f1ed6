package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// cell is one counter guarded by its own mutex.  The mutex is held only for
// the check-and-update of that counter.
type cell struct {
	mu sync.Mutex
	c  model.QuotaCounter
}

// MemoryCounters is an in-process CounterStore.  The cells map is guarded
// by an RWMutex that is only taken to find or add a cell; reservations on
// different keys never contend with each other.
type MemoryCounters struct {
	mu    sync.RWMutex
	cells map[Key]*cell
}

// NewMemoryCounters returns an empty store.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{cells: make(map[Key]*cell)}
}

// Define creates or replaces the counter for key with the given capacity
// and zero allocations.
func (m *MemoryCounters) Define(key Key, totalSeats int) error {
	if totalSeats < 0 {
		return fmt.Errorf("total seats must not be negative, got %d", totalSeats)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[key] = &cell{c: model.QuotaCounter{ProgramID: key.ProgramID, QuotaType: key.Quota, TotalSeats: totalSeats}}
	return nil
}

// DefineMatrix defines one counter per quota of the seat matrix.
func (m *MemoryCounters) DefineMatrix(sm model.SeatMatrix) error {
	for _, c := range sm.Counters() {
		if err := m.Define(Key{ProgramID: c.ProgramID, Quota: c.QuotaType}, c.TotalSeats); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryCounters) lookup(key Key) (*cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cl, ok := m.cells[key]
	if !ok {
		return nil, fmt.Errorf("%w: program %d quota %s", ErrCounterNotFound, key.ProgramID, key.Quota)
	}
	return cl, nil
}

// TryIncrement implements CounterStore.
func (m *MemoryCounters) TryIncrement(_ context.Context, key Key) (model.QuotaCounter, bool, error) {
	cl, err := m.lookup(key)
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.c.Allocated >= cl.c.TotalSeats {
		return cl.c, false, nil
	}
	cl.c.Allocated++
	return cl.c, true, nil
}

// Decrement implements CounterStore.
func (m *MemoryCounters) Decrement(_ context.Context, key Key) (model.QuotaCounter, bool, error) {
	cl, err := m.lookup(key)
	if err != nil {
		return model.QuotaCounter{}, false, err
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.c.Allocated <= 0 {
		return cl.c, false, nil
	}
	cl.c.Allocated--
	return cl.c, true, nil
}

// Counters implements CounterStore.  It returns nil when the program has no
// counters at all.
func (m *MemoryCounters) Counters(_ context.Context, programID uint64) ([]model.QuotaCounter, error) {
	m.mu.RLock()
	cells := make([]*cell, 0, len(model.QuotaTypes))
	for k, cl := range m.cells {
		if k.ProgramID == programID {
			cells = append(cells, cl)
		}
	}
	m.mu.RUnlock()

	out := make([]model.QuotaCounter, 0, len(cells))
	for _, cl := range cells {
		cl.mu.Lock()
		out = append(out, cl.c)
		cl.mu.Unlock()
	}
	if len(out) == 0 {
		return nil, nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuotaType.Order() < out[j].QuotaType.Order() })
	return out, nil
}
