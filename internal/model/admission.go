package model

import "time"

// FeeStatus is the payment state of an admission.
type FeeStatus string

const (
	FeePending FeeStatus = "Pending"
	FeePaid    FeeStatus = "Paid"
)

// Admission records an applicant's progress from seat lock to confirmation.
// There is at most one admission per applicant (unique applicant_id).
//
// Fields:
//	SeatLocked/SeatLockedAt: set once at allocation.
//	FeeStatus/FeePaidAt:     Pending until the fee transition.
//	IsConfirmed/ConfirmedAt: terminal flag set by confirmation.
//	AdmissionNumber:         issued exactly once at confirmation.
//	Version:                 optimistic locking counter, bumped on every save.
type Admission struct {
	ID              uint64     `json:"id"`
	ApplicantID     uint64     `json:"applicant_id"`
	ProgramID       uint64     `json:"program_id"`
	QuotaType       QuotaType  `json:"quota_type"`
	SeatLocked      bool       `json:"seat_locked"`
	SeatLockedAt    *time.Time `json:"seat_locked_at,omitempty"`
	FeeStatus       FeeStatus  `json:"fee_status"`
	FeePaidAt       *time.Time `json:"fee_paid_at,omitempty"`
	IsConfirmed     bool       `json:"is_confirmed"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	AdmissionNumber *string    `json:"admission_number"`
	Version         uint32     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing
// pointer fields of a stored record.
func (a *Admission) Clone() *Admission {
	if a == nil {
		return nil
	}
	c := *a
	c.SeatLockedAt = cloneTime(a.SeatLockedAt)
	c.FeePaidAt = cloneTime(a.FeePaidAt)
	c.ConfirmedAt = cloneTime(a.ConfirmedAt)
	if a.AdmissionNumber != nil {
		n := *a.AdmissionNumber
		c.AdmissionNumber = &n
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
