// Package queue defines the admission lifecycle events exchanged over the
// message broker and the publisher/consumer that move them.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// EventType names a lifecycle step.  It doubles as the routing key.
type EventType string

const (
	EventSeatLocked EventType = "admission.seat_locked"
	EventFeePaid    EventType = "admission.fee_paid"
	EventConfirmed  EventType = "admission.confirmed"
)

// AdmissionEvent is published after a lifecycle transition has committed.
// It carries enough data for downstream consumers (audit log, notifications)
// to act without querying the primary database.
type AdmissionEvent struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	AdmissionID     uint64    `json:"admission_id"`
	ApplicantID     uint64    `json:"applicant_id"`
	ProgramID       uint64    `json:"program_id"`
	QuotaType       string    `json:"quota_type"`
	FeeStatus       string    `json:"fee_status"`
	AdmissionNumber string    `json:"admission_number,omitempty"`
	Actor           string    `json:"actor,omitempty"`
	OccurredAt      string    `json:"occurred_at"`
}

// NewAdmissionEvent snapshots adm into an event of the given type.
func NewAdmissionEvent(t EventType, adm *model.Admission, actor string, at time.Time) AdmissionEvent {
	ev := AdmissionEvent{
		ID:          uuid.NewString(),
		Type:        t,
		AdmissionID: adm.ID,
		ApplicantID: adm.ApplicantID,
		ProgramID:   adm.ProgramID,
		QuotaType:   string(adm.QuotaType),
		FeeStatus:   string(adm.FeeStatus),
		Actor:       actor,
		OccurredAt:  at.UTC().Format(time.RFC3339),
	}
	if adm.AdmissionNumber != nil {
		ev.AdmissionNumber = *adm.AdmissionNumber
	}
	return ev
}

// Line renders the event as a single human-readable audit line.
func (e AdmissionEvent) Line() string {
	line := fmt.Sprintf("[%s] %s | admission_id=%d | applicant_id=%d | program_id=%d | quota=%s | fee=%s",
		e.OccurredAt, e.Type, e.AdmissionID, e.ApplicantID, e.ProgramID, e.QuotaType, e.FeeStatus)
	if e.AdmissionNumber != "" {
		line += " | admission_number=" + e.AdmissionNumber
	}
	if e.Actor != "" {
		line += " | actor=" + e.Actor
	}
	return line
}
