package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/iliyamo/admission-allocation/internal/ledger"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/service"
)

// MemoryStore is an in-process service.Store used by tests and by the
// "memory" storage driver.  Quota counters live in a ledger.MemoryCounters
// with one lock per key; every other map is guarded by mu, which is held
// only for the duration of a single read or write.  A transaction records
// an undo step for each mutation and replays them in reverse on failure.
type MemoryStore struct {
	mu          sync.RWMutex
	programs    map[uint64]model.Program
	applicants  map[uint64]model.Applicant
	admissions  map[uint64]*model.Admission
	byApplicant map[uint64]uint64
	documents   map[uint64]*model.Document
	sequences   map[string]int64
	lastAdmID   uint64
	lastDocID   uint64

	counters *ledger.MemoryCounters
	ledger   *ledger.Ledger
}

// NewMemoryStore returns an empty store.  l is used to release seats when a
// transaction rolls back; nil gets a ledger without logging.
func NewMemoryStore(l *ledger.Ledger) *MemoryStore {
	if l == nil {
		l = ledger.New(nil, nil)
	}
	return &MemoryStore{
		programs:    make(map[uint64]model.Program),
		applicants:  make(map[uint64]model.Applicant),
		admissions:  make(map[uint64]*model.Admission),
		byApplicant: make(map[uint64]uint64),
		documents:   make(map[uint64]*model.Document),
		sequences:   make(map[string]int64),
		counters:    ledger.NewMemoryCounters(),
		ledger:      l,
	}
}

// AddProgram registers master data for a program and defines its quota
// counters from the seat matrix.
func (s *MemoryStore) AddProgram(p model.Program, sm model.SeatMatrix) error {
	if p.ID == 0 {
		return fmt.Errorf("program id is required")
	}
	sm.ProgramID = p.ID
	if err := sm.Validate(); err != nil {
		return fmt.Errorf("program %d: %w", p.ID, err)
	}
	if err := s.counters.DefineMatrix(sm); err != nil {
		return err
	}
	s.mu.Lock()
	s.programs[p.ID] = p
	s.mu.Unlock()
	return nil
}

// AddApplicant registers an applicant.
func (s *MemoryStore) AddApplicant(a model.Applicant) error {
	if a.ID == 0 {
		return fmt.Errorf("applicant id is required")
	}
	if !a.QuotaType.Valid() {
		return fmt.Errorf("applicant %d: unknown quota type %q", a.ID, a.QuotaType)
	}
	s.mu.Lock()
	s.applicants[a.ID] = a
	s.mu.Unlock()
	return nil
}

// Seed is the JSON layout accepted by LoadSeedFile.
type Seed struct {
	Programs []struct {
		model.Program
		SeatMatrix model.SeatMatrix `json:"seat_matrix"`
	} `json:"programs"`
	Applicants []model.Applicant `json:"applicants"`
}

// LoadSeedFile reads master data from a JSON file into the store.
func (s *MemoryStore) LoadSeedFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	for _, p := range seed.Programs {
		if err := s.AddProgram(p.Program, p.SeatMatrix); err != nil {
			return err
		}
	}
	for _, a := range seed.Applicants {
		if err := s.AddApplicant(a); err != nil {
			return err
		}
	}
	return nil
}

// RunInTx implements service.Store.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx service.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{s: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) TryIncrement(ctx context.Context, key ledger.Key) (model.QuotaCounter, bool, error) {
	c, ok, err := t.s.counters.TryIncrement(ctx, key)
	if err == nil && ok {
		t.undo = append(t.undo, func() {
			_, _ = t.s.ledger.Release(context.Background(), t.s.counters, key)
		})
	}
	return c, ok, err
}

func (t *memTx) Decrement(ctx context.Context, key ledger.Key) (model.QuotaCounter, bool, error) {
	c, ok, err := t.s.counters.Decrement(ctx, key)
	if err == nil && ok {
		t.undo = append(t.undo, func() {
			_, _, _ = t.s.counters.TryIncrement(context.Background(), key)
		})
	}
	return c, ok, err
}

func (t *memTx) Counters(ctx context.Context, programID uint64) ([]model.QuotaCounter, error) {
	return t.s.counters.Counters(ctx, programID)
}

func (t *memTx) Program(_ context.Context, id uint64) (*model.Program, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.programs[id]
	if !ok {
		return nil, fmt.Errorf("program %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) Applicant(_ context.Context, id uint64) (*model.Applicant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.applicants[id]
	if !ok {
		return nil, fmt.Errorf("applicant %d: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (t *memTx) Admission(_ context.Context, id uint64) (*model.Admission, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.admissions[id]
	if !ok {
		return nil, fmt.Errorf("admission %d: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

// AdmissionForUpdate takes no row lock; SaveAdmission's version check
// rejects the loser of a concurrent update instead.
func (t *memTx) AdmissionForUpdate(ctx context.Context, id uint64) (*model.Admission, error) {
	return t.Admission(ctx, id)
}

func (t *memTx) AdmissionByApplicant(_ context.Context, applicantID uint64) (*model.Admission, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	id, ok := t.s.byApplicant[applicantID]
	if !ok {
		return nil, fmt.Errorf("admission for applicant %d: %w", applicantID, ErrNotFound)
	}
	return t.s.admissions[id].Clone(), nil
}

func (t *memTx) CreateAdmission(_ context.Context, a *model.Admission) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, dup := t.s.byApplicant[a.ApplicantID]; dup {
		return fmt.Errorf("admission for applicant %d: %w", a.ApplicantID, ErrConflict)
	}
	t.s.lastAdmID++
	a.ID = t.s.lastAdmID
	a.Version = 1
	t.s.admissions[a.ID] = a.Clone()
	t.s.byApplicant[a.ApplicantID] = a.ID

	id, applicantID := a.ID, a.ApplicantID
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		delete(t.s.admissions, id)
		delete(t.s.byApplicant, applicantID)
		t.s.mu.Unlock()
	})
	return nil
}

func (t *memTx) SaveAdmission(_ context.Context, a *model.Admission) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.admissions[a.ID]
	if !ok {
		return fmt.Errorf("admission %d: %w", a.ID, ErrNotFound)
	}
	if cur.Version != a.Version {
		return fmt.Errorf("admission %d: %w", a.ID, ErrStaleRecord)
	}
	if a.AdmissionNumber != nil {
		for id, other := range t.s.admissions {
			if id != a.ID && other.AdmissionNumber != nil && *other.AdmissionNumber == *a.AdmissionNumber {
				return fmt.Errorf("admission number %s: %w", *a.AdmissionNumber, ErrConflict)
			}
		}
	}
	a.Version++
	t.s.admissions[a.ID] = a.Clone()

	prev, id, version := cur, a.ID, a.Version
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		if now, ok := t.s.admissions[id]; ok && now.Version == version {
			t.s.admissions[id] = prev
		}
		t.s.mu.Unlock()
	})
	return nil
}

// NextSequence is not undone on rollback; sequences tolerate gaps.
func (t *memTx) ListAdmissions(_ context.Context, f service.AdmissionFilter) ([]model.Admission, error) {
	t.s.mu.RLock()
	out := make([]model.Admission, 0)
	for _, a := range t.s.admissions {
		if f.Match(a) {
			out = append(out, *a.Clone())
		}
	}
	t.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) NextSequence(_ context.Context, scope string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.sequences[scope]++
	return t.s.sequences[scope], nil
}

func (t *memTx) DocumentForUpdate(_ context.Context, id uint64) (*model.Document, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	d, ok := t.s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (t *memTx) Documents(_ context.Context, applicantID uint64) ([]model.Document, error) {
	t.s.mu.RLock()
	out := make([]model.Document, 0)
	for _, d := range t.s.documents {
		if d.ApplicantID == applicantID {
			out = append(out, *d)
		}
	}
	t.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateDocument(_ context.Context, d *model.Document) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.lastDocID++
	d.ID = t.s.lastDocID
	d.Version = 1
	c := *d
	t.s.documents[d.ID] = &c

	id := d.ID
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		delete(t.s.documents, id)
		t.s.mu.Unlock()
	})
	return nil
}

func (t *memTx) SaveDocument(_ context.Context, d *model.Document) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur, ok := t.s.documents[d.ID]
	if !ok {
		return fmt.Errorf("document %d: %w", d.ID, ErrNotFound)
	}
	if cur.Version != d.Version {
		return fmt.Errorf("document %d: %w", d.ID, ErrStaleRecord)
	}
	d.Version++
	c := *d
	t.s.documents[d.ID] = &c

	prev, id, version := cur, d.ID, d.Version
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		if now, ok := t.s.documents[id]; ok && now.Version == version {
			t.s.documents[id] = prev
		}
		t.s.mu.Unlock()
	})
	return nil
}
