package service_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/metrics"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/queue"
	"github.com/iliyamo/admission-allocation/internal/repository"
	"github.com/iliyamo/admission-allocation/internal/service"
)

var fixedNow = time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AdmissionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AdmissionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store *repository.MemoryStore
	svc   *service.AllocationService
	pub   *recordingPublisher
	m     *metrics.Metrics
}

// newFixture builds program 1 (CSE, 60 KCET / 30 COMEDK / 30 Management /
// 2 Supernumerary) and applicants 1..n declaring KCET.
func newFixture(t *testing.T, applicants int, opts ...service.Option) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(nil)
	require.NoError(t, store.AddProgram(
		model.Program{ID: 1, Code: "CSE", InstitutionCode: "INST", AcademicYear: "2026", CourseType: "UG"},
		model.SeatMatrix{TotalIntake: 120, KCETSeats: 60, COMEDKSeats: 30, ManagementSeats: 30, SupernumerarySeats: 2},
	))
	for i := 1; i <= applicants; i++ {
		require.NoError(t, store.AddApplicant(model.Applicant{
			ID: uint64(i), FullName: fmt.Sprintf("applicant-%d", i), QuotaType: model.QuotaKCET, ProgramID: 1,
		}))
	}
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	base := []service.Option{
		service.WithPublisher(pub),
		service.WithMetrics(m),
		service.WithClock(func() time.Time { return fixedNow }),
	}
	return &fixture{
		store: store,
		svc:   service.New(store, append(base, opts...)...),
		pub:   pub,
		m:     m,
	}
}

func (f *fixture) counter(t *testing.T, q model.QuotaType) model.QuotaCounter {
	t.Helper()
	counters, err := f.svc.QuotaCounters(context.Background(), 1)
	require.NoError(t, err)
	for _, c := range counters {
		if c.QuotaType == q {
			return c
		}
	}
	t.Fatalf("no counter for %s", q)
	return model.QuotaCounter{}
}

func kcet(applicantID uint64) service.AllocateRequest {
	return service.AllocateRequest{ApplicantID: applicantID, ProgramID: 1, QuotaType: model.QuotaKCET}
}

func TestAllocate_FillsQuotaThenRejects(t *testing.T) {
	f := newFixture(t, 61)
	ctx := context.Background()

	for i := uint64(1); i <= 60; i++ {
		adm, err := f.svc.Allocate(ctx, kcet(i))
		require.NoError(t, err, "applicant %d", i)
		assert.True(t, adm.SeatLocked)
		assert.Equal(t, model.FeePending, adm.FeeStatus)
	}
	c := f.counter(t, model.QuotaKCET)
	assert.Equal(t, 60, c.Allocated)
	assert.Equal(t, 0, c.Remaining())

	_, err := f.svc.Allocate(ctx, kcet(61))
	require.ErrorIs(t, err, service.ErrSeatUnavailable)
	assert.Equal(t, service.KindCapacity, service.KindOf(err))
	assert.Equal(t, 60, f.counter(t, model.QuotaKCET).Allocated)

	_, err = f.svc.Allocate(ctx, service.AllocateRequest{ApplicantID: 61, ProgramID: 1, QuotaType: model.QuotaKCET})
	assert.ErrorIs(t, err, service.ErrSeatUnavailable)
	assert.Equal(t, float64(60), testutil.ToFloat64(f.m.Allocations.WithLabelValues("KCET", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.m.Allocations.WithLabelValues("KCET", "seat_unavailable")))
}

func TestAllocate_AlreadyAllocatedLeavesLedgerUnchanged(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first, err := f.svc.Allocate(ctx, kcet(1))
	require.NoError(t, err)

	_, err = f.svc.Allocate(ctx, kcet(1))
	require.ErrorIs(t, err, service.ErrAlreadyAllocated)
	assert.Equal(t, service.KindConflict, service.KindOf(err))
	assert.Equal(t, 1, f.counter(t, model.QuotaKCET).Allocated)

	got, err := f.svc.GetAdmission(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ApplicantID, got.ApplicantID)
	assert.Equal(t, []queue.EventType{queue.EventSeatLocked}, f.pub.types())
}

func TestAllocate_QuotaPolicy(t *testing.T) {
	ctx := context.Background()
	req := service.AllocateRequest{ApplicantID: 1, ProgramID: 1, QuotaType: model.QuotaManagement}

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.svc.Allocate(ctx, req)
		require.ErrorIs(t, err, service.ErrQuotaMismatch)
		assert.Equal(t, service.KindValidation, service.KindOf(err))
		assert.Equal(t, 0, f.counter(t, model.QuotaManagement).Allocated)
	})

	t.Run("override", func(t *testing.T) {
		f := newFixture(t, 1, service.WithQuotaPolicy(service.QuotaPolicyOverride))
		adm, err := f.svc.Allocate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.QuotaManagement, adm.QuotaType)
		assert.Equal(t, 1, f.counter(t, model.QuotaManagement).Allocated)
		assert.Equal(t, 0, f.counter(t, model.QuotaKCET).Allocated)
	})
}

func TestAllocate_Validation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		req  service.AllocateRequest
		want error
	}{
		{"missing applicant", service.AllocateRequest{ProgramID: 1, QuotaType: model.QuotaKCET}, service.ErrValidation},
		{"missing program", service.AllocateRequest{ApplicantID: 1, QuotaType: model.QuotaKCET}, service.ErrValidation},
		{"unknown quota", service.AllocateRequest{ApplicantID: 1, ProgramID: 1, QuotaType: "NRI"}, service.ErrValidation},
		{"unknown applicant", kcet(99), service.ErrNotFound},
		{"unknown program", service.AllocateRequest{ApplicantID: 1, ProgramID: 9, QuotaType: model.QuotaKCET}, service.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Allocate(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.counter(t, model.QuotaKCET).Allocated)
	assert.Empty(t, f.pub.types())
}

func TestAllocate_ZeroCapacityQuota(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	require.NoError(t, store.AddProgram(model.Program{ID: 1, Code: "ME"},
		model.SeatMatrix{TotalIntake: 10, KCETSeats: 10}))
	require.NoError(t, store.AddApplicant(model.Applicant{ID: 1, QuotaType: model.QuotaCOMEDK, ProgramID: 1}))
	svc := service.New(store)

	_, err := svc.Allocate(context.Background(), service.AllocateRequest{ApplicantID: 1, ProgramID: 1, QuotaType: model.QuotaCOMEDK})
	assert.ErrorIs(t, err, service.ErrSeatUnavailable)
}

func TestAllocate_LastSeatUnderContention(t *testing.T) {
	const callers = 40
	f := newFixture(t, 59+callers)
	ctx := context.Background()
	for i := uint64(1); i <= 59; i++ {
		_, err := f.svc.Allocate(ctx, kcet(i))
		require.NoError(t, err)
	}

	var wins, full int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			<-start
			_, err := f.svc.Allocate(ctx, kcet(id))
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, service.ErrSeatUnavailable):
				atomic.AddInt64(&full, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(60 + i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, int64(callers-1), full)
	assert.Equal(t, 60, f.counter(t, model.QuotaKCET).Allocated)
}

func TestAllocate_SameApplicantConcurrently(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Allocate(ctx, kcet(1))
			if err == nil {
				atomic.AddInt64(&wins, 1)
				return
			}
			assert.ErrorIs(t, err, service.ErrAlreadyAllocated)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, 1, f.counter(t, model.QuotaKCET).Allocated)
}

func TestLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t, 2, service.WithNumberFormat(lifecycle.NumberFormat{Width: 4}))
	ctx := service.WithActor(context.Background(), "officer-7")

	adm, err := f.svc.Allocate(ctx, kcet(1))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, adm.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition, "confirm before fee")

	paid, err := f.svc.MarkFeePaid(ctx, adm.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FeePaid, paid.FeeStatus)
	require.NotNil(t, paid.FeePaidAt)

	_, err = f.svc.MarkFeePaid(ctx, adm.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition, "fee twice")

	confirmed, err := f.svc.Confirm(ctx, adm.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed)
	require.NotNil(t, confirmed.AdmissionNumber)
	assert.Equal(t, "INST/2026/UG/CSE/KCET/0001", *confirmed.AdmissionNumber)

	_, err = f.svc.Confirm(ctx, adm.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition, "confirm twice")
	_, err = f.svc.MarkFeePaid(ctx, adm.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition, "fee after confirm")

	got, err := f.svc.GetAdmission(ctx, adm.ID)
	require.NoError(t, err)
	assert.Equal(t, *confirmed.AdmissionNumber, *got.AdmissionNumber)

	// second admission in the same quota gets the next number
	adm2, err := f.svc.Allocate(ctx, kcet(2))
	require.NoError(t, err)
	_, err = f.svc.MarkFeePaid(ctx, adm2.ID)
	require.NoError(t, err)
	c2, err := f.svc.Confirm(ctx, adm2.ID)
	require.NoError(t, err)
	assert.Equal(t, "INST/2026/UG/CSE/KCET/0002", *c2.AdmissionNumber)

	assert.Equal(t, []queue.EventType{
		queue.EventSeatLocked, queue.EventFeePaid, queue.EventConfirmed,
		queue.EventSeatLocked, queue.EventFeePaid, queue.EventConfirmed,
	}, f.pub.types())
	assert.Equal(t, "officer-7", f.pub.events[0].Actor)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.m.Transitions.WithLabelValues("confirmed", "invalid_transition")))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.m.Transitions.WithLabelValues("fee_paid", "invalid_transition")))
}

func TestConfirm_ConcurrentCallsIssueOneNumber(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	adm, err := f.svc.Allocate(ctx, kcet(1))
	require.NoError(t, err)
	_, err = f.svc.MarkFeePaid(ctx, adm.ID)
	require.NoError(t, err)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Confirm(ctx, adm.ID); err == nil {
				atomic.AddInt64(&wins, 1)
			} else {
				assert.ErrorIs(t, err, service.ErrInvalidTransition)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func TestTransitions_NotFoundAndValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.MarkFeePaid(ctx, 42)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.Confirm(ctx, 42)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.MarkFeePaid(ctx, 0)
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.GetAdmission(ctx, 42)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.QuotaCounters(ctx, 9)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestListAdmissions(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	var ids []uint64
	for i := uint64(1); i <= 3; i++ {
		adm, err := f.svc.Allocate(ctx, kcet(i))
		require.NoError(t, err)
		ids = append(ids, adm.ID)
	}
	_, err := f.svc.MarkFeePaid(ctx, ids[1])
	require.NoError(t, err)

	all, err := f.svc.ListAdmissions(ctx, service.AdmissionFilter{ProgramID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	locked, err := f.svc.ListAdmissions(ctx, service.AdmissionFilter{Stage: "seatlocked"})
	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.Equal(t, ids[0], locked[0].ID)
	assert.Equal(t, ids[2], locked[1].ID)

	paid, err := f.svc.ListAdmissions(ctx, service.AdmissionFilter{ProgramID: 1, Stage: lifecycle.StageFeePaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, ids[1], paid[0].ID)

	page, err := f.svc.ListAdmissions(ctx, service.AdmissionFilter{AfterID: ids[0], Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	confirmed, err := f.svc.ListAdmissions(ctx, service.AdmissionFilter{Stage: lifecycle.StageConfirmed})
	require.NoError(t, err)
	assert.NotNil(t, confirmed)
	assert.Empty(t, confirmed)

	_, err = f.svc.ListAdmissions(ctx, service.AdmissionFilter{Stage: "Archived"})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.ListAdmissions(ctx, service.AdmissionFilter{Limit: service.MaxListLimit + 1})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.ListAdmissions(ctx, service.AdmissionFilter{ProgramID: 9})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, 1)
	f.pub.err = errors.New("broker down")

	adm, err := f.svc.Allocate(context.Background(), kcet(1))
	require.NoError(t, err)
	assert.NotZero(t, adm.ID)
	assert.Equal(t, 1, f.counter(t, model.QuotaKCET).Allocated)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	marks, err := f.svc.AddDocument(ctx, 1, "  10th Marksheet ")
	require.NoError(t, err)
	assert.Equal(t, "10th Marksheet", marks.DocumentName)
	assert.Equal(t, model.DocumentPending, marks.Status)
	tc, err := f.svc.AddDocument(ctx, 1, "Transfer Certificate")
	require.NoError(t, err)

	_, err = f.svc.AddDocument(ctx, 1, "   ")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.AddDocument(ctx, 99, "Photo")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.AdvanceDocument(ctx, marks.ID, model.DocumentVerified)
	require.ErrorIs(t, err, service.ErrInvalidDocumentTransition, "skip Submitted")

	for _, st := range []model.DocumentStatus{model.DocumentSubmitted, model.DocumentVerified} {
		d, err := f.svc.AdvanceDocument(ctx, marks.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, d.Status)
	}
	_, err = f.svc.AdvanceDocument(ctx, marks.ID, model.DocumentSubmitted)
	assert.ErrorIs(t, err, service.ErrInvalidDocumentTransition, "no regression")

	_, err = f.svc.AdvanceApplicantDocument(ctx, 2, tc.ID, model.DocumentSubmitted)
	assert.ErrorIs(t, err, service.ErrNotFound, "other applicant's document")
	_, err = f.svc.AdvanceDocument(ctx, 777, model.DocumentSubmitted)
	assert.ErrorIs(t, err, service.ErrNotFound)

	docs, sum, err := f.svc.ListDocuments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Verified)
	assert.Equal(t, 1, sum.Pending)
	assert.False(t, sum.Complete)

	docs, sum, err = f.svc.ListDocuments(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, sum.Total)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want service.Kind
	}{
		{fmt.Errorf("x: %w", service.ErrValidation), service.KindValidation},
		{service.ErrQuotaMismatch, service.KindValidation},
		{service.ErrNotFound, service.KindNotFound},
		{service.ErrAlreadyAllocated, service.KindConflict},
		{service.ErrInvalidTransition, service.KindConflict},
		{service.ErrInvalidDocumentTransition, service.KindConflict},
		{service.ErrSeatUnavailable, service.KindCapacity},
		{service.ErrInvariantViolation, service.KindInternal},
		{errors.New("disk on fire"), service.KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.KindOf(tt.err), tt.err.Error())
	}
	assert.Equal(t, "capacity", service.KindCapacity.String())
}

func TestParseQuotaPolicy(t *testing.T) {
	p, err := service.ParseQuotaPolicy("")
	require.NoError(t, err)
	assert.Equal(t, service.QuotaPolicyStrict, p)
	p, err = service.ParseQuotaPolicy("override")
	require.NoError(t, err)
	assert.Equal(t, service.QuotaPolicyOverride, p)
	_, err = service.ParseQuotaPolicy("lenient")
	assert.Error(t, err)
}

func TestAllocate_SeatMatrixNeverOverAllocates(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	matrix := model.SeatMatrix{TotalIntake: 100, KCETSeats: 60, COMEDKSeats: 20, ManagementSeats: 20, SupernumerarySeats: 5}
	require.NoError(t, store.AddProgram(
		model.Program{ID: 1, Code: "ECE", InstitutionCode: "INST", AcademicYear: "2026", CourseType: "UG"}, matrix,
	))
	plan := []struct {
		quota model.QuotaType
		seats int
	}{
		{model.QuotaKCET, 60},
		{model.QuotaCOMEDK, 20},
		{model.QuotaManagement, 20},
		{model.QuotaSupernumerary, 5},
	}
	// one applicant per seat plus one extra per quota
	next := uint64(1)
	ids := map[model.QuotaType][]uint64{}
	for _, p := range plan {
		for i := 0; i <= p.seats; i++ {
			require.NoError(t, store.AddApplicant(model.Applicant{
				ID: next, FullName: fmt.Sprintf("applicant-%d", next), QuotaType: p.quota, ProgramID: 1,
			}))
			ids[p.quota] = append(ids[p.quota], next)
			next++
		}
	}
	svc := service.New(store, service.WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	var wg sync.WaitGroup
	var granted atomic.Int64
	for _, p := range plan {
		for _, id := range ids[p.quota] {
			wg.Add(1)
			go func(id uint64, q model.QuotaType) {
				defer wg.Done()
				_, err := svc.Allocate(ctx, service.AllocateRequest{ApplicantID: id, ProgramID: 1, QuotaType: q})
				if err == nil {
					granted.Add(1)
					return
				}
				assert.ErrorIs(t, err, service.ErrSeatUnavailable)
			}(id, p.quota)
		}
	}
	wg.Wait()

	counters, err := svc.QuotaCounters(ctx, 1)
	require.NoError(t, err)
	require.Len(t, counters, len(plan))
	sum := 0
	for i, c := range counters {
		assert.Equal(t, plan[i].quota, c.QuotaType)
		assert.Equal(t, plan[i].seats, c.Allocated, "quota %s", c.QuotaType)
		assert.Equal(t, 0, c.Remaining())
		sum += c.Allocated
	}
	assert.LessOrEqual(t, sum, matrix.TotalIntake+matrix.SupernumerarySeats)
	assert.Equal(t, int64(sum), granted.Load())

	for _, p := range plan {
		extra := next
		next++
		require.NoError(t, store.AddApplicant(model.Applicant{
			ID: extra, FullName: "late", QuotaType: p.quota, ProgramID: 1,
		}))
		_, err := svc.Allocate(ctx, service.AllocateRequest{ApplicantID: extra, ProgramID: 1, QuotaType: p.quota})
		assert.ErrorIs(t, err, service.ErrSeatUnavailable, "quota %s", p.quota)
	}
}

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestAllocate_UnresponsiveBrokerDoesNotStallRequests(t *testing.T) {
	pub := queue.NewPublisher(silentBroker(t), "", nil)
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(runCtx)
	}()
	t.Cleanup(func() {
		stop()
		<-done
	})

	f := newFixture(t, 4, service.WithPublisher(pub))
	var wg sync.WaitGroup
	for i := uint64(1); i <= 4; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			start := time.Now()
			_, err := f.svc.Allocate(ctx, kcet(id))
			assert.NoError(t, err)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, f.counter(t, model.QuotaKCET).Allocated)
}
