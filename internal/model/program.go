package model

import "fmt"

// Program is the read-only master-data view of an academic program.  It is
// owned by the masters subsystem; the allocation engine only reads it.
//
// Fields:
//	InstitutionCode: short institution code used in admission numbers.
//	AcademicYear:    academic year label (e.g. "2026").
//	CourseType:      UG or PG.
//	EntryType:       Regular or Lateral.
//	AdmissionMode:   Government or Management.
type Program struct {
	ID              uint64 `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	DepartmentID    uint64 `json:"department_id"`
	InstitutionCode string `json:"institution_code"`
	AcademicYear    string `json:"academic_year"`
	CourseType      string `json:"course_type"`
	EntryType       string `json:"entry_type"`
	AdmissionMode   string `json:"admission_mode"`
}

// SeatMatrix holds the intake split of a program.  KCET, COMEDK and
// Management seats sum to TotalIntake; supernumerary seats are additive.
type SeatMatrix struct {
	ProgramID          uint64 `json:"program_id"`
	TotalIntake        int    `json:"total_intake"`
	KCETSeats          int    `json:"kcet_seats"`
	COMEDKSeats        int    `json:"comedk_seats"`
	ManagementSeats    int    `json:"management_seats"`
	SupernumerarySeats int    `json:"supernumerary_seats"`
}

// Validate checks the creation-time invariants of a seat matrix.  The
// masters subsystem owns creation; the engine calls this when seeding its
// own counters so that a malformed matrix never reaches the ledger.
func (m SeatMatrix) Validate() error {
	if m.TotalIntake <= 0 {
		return fmt.Errorf("total_intake must be positive, got %d", m.TotalIntake)
	}
	if m.KCETSeats < 0 || m.COMEDKSeats < 0 || m.ManagementSeats < 0 || m.SupernumerarySeats < 0 {
		return fmt.Errorf("quota seats must not be negative")
	}
	if sum := m.KCETSeats + m.COMEDKSeats + m.ManagementSeats; sum != m.TotalIntake {
		return fmt.Errorf("quota sum (%d) must equal total intake (%d)", sum, m.TotalIntake)
	}
	return nil
}

// Seats returns the capacity of the given quota.
func (m SeatMatrix) Seats(q QuotaType) int {
	switch q {
	case QuotaKCET:
		return m.KCETSeats
	case QuotaCOMEDK:
		return m.COMEDKSeats
	case QuotaManagement:
		return m.ManagementSeats
	case QuotaSupernumerary:
		return m.SupernumerarySeats
	}
	return 0
}

// Counters expands the matrix into one empty counter per quota category.
func (m SeatMatrix) Counters() []QuotaCounter {
	out := make([]QuotaCounter, 0, len(QuotaTypes))
	for _, q := range QuotaTypes {
		out = append(out, QuotaCounter{ProgramID: m.ProgramID, QuotaType: q, TotalSeats: m.Seats(q)})
	}
	return out
}
