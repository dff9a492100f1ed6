// Package lifecycle owns the admission state machine:
//
//	Unallocated -> SeatLocked -> FeePaid -> Confirmed
//
// No transition skips a stage and none reverses.  The functions here only
// mutate the in-memory record; persistence and locking belong to the caller.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// ErrInvalidTransition is returned when a transition's precondition does not hold.
var ErrInvalidTransition = errors.New("invalid admission transition")

// Stage is the derived lifecycle position of an admission.
type Stage string

const (
	StageUnallocated Stage = "Unallocated"
	StageSeatLocked  Stage = "SeatLocked"
	StageFeePaid     Stage = "FeePaid"
	StageConfirmed   Stage = "Confirmed"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{StageUnallocated, StageSeatLocked, StageFeePaid, StageConfirmed}

// ParseStage accepts a stage name case-insensitively.
func ParseStage(s string) (Stage, error) {
	s = strings.TrimSpace(s)
	for _, st := range Stages {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// StageOf derives the stage from the stored flags.  A nil admission is
// Unallocated.
func StageOf(a *model.Admission) Stage {
	switch {
	case a == nil || !a.SeatLocked:
		return StageUnallocated
	case a.IsConfirmed:
		return StageConfirmed
	case a.FeeStatus == model.FeePaid:
		return StageFeePaid
	default:
		return StageSeatLocked
	}
}

// NewSeatLock builds the admission created by a successful allocation.
func NewSeatLock(applicantID, programID uint64, quota model.QuotaType, now time.Time) *model.Admission {
	now = now.UTC()
	return &model.Admission{
		ApplicantID:  applicantID,
		ProgramID:    programID,
		QuotaType:    quota,
		SeatLocked:   true,
		SeatLockedAt: &now,
		FeeStatus:    model.FeePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkFeePaid moves a SeatLocked admission to FeePaid.  Calling it again
// after success fails because the admission is no longer SeatLocked.
func MarkFeePaid(a *model.Admission, now time.Time) error {
	if st := StageOf(a); st != StageSeatLocked {
		return fmt.Errorf("%w: cannot mark fee paid from %s", ErrInvalidTransition, st)
	}
	now = now.UTC()
	a.FeeStatus = model.FeePaid
	a.FeePaidAt = &now
	a.UpdatedAt = now
	return nil
}

// Confirm moves a FeePaid admission to Confirmed and records its admission
// number.  The number is assigned exactly once.
func Confirm(a *model.Admission, number string, now time.Time) error {
	if err := CanConfirm(a); err != nil {
		return err
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return errors.New("admission number must not be empty")
	}
	now = now.UTC()
	a.IsConfirmed = true
	a.AdmissionNumber = &number
	a.ConfirmedAt = &now
	a.UpdatedAt = now
	return nil
}

// CanConfirm checks the confirmation precondition without mutating a.  The
// caller uses it before drawing an admission number from the sequence.
func CanConfirm(a *model.Admission) error {
	if st := StageOf(a); st != StageFeePaid {
		return fmt.Errorf("%w: cannot confirm from %s", ErrInvalidTransition, st)
	}
	if a.AdmissionNumber != nil {
		return fmt.Errorf("%w: admission number already issued", ErrInvalidTransition)
	}
	return nil
}
