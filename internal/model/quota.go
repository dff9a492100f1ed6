package model

import (
	"fmt"
	"strings"
)

// QuotaType names one of the seat pools a program's intake is divided
// into.  The string values match what the admissions front-end sends and
// what is stored in quota_counters.quota_type.
type QuotaType string

const (
	QuotaKCET          QuotaType = "KCET"
	QuotaCOMEDK        QuotaType = "COMEDK"
	QuotaManagement    QuotaType = "Management"
	QuotaSupernumerary QuotaType = "Supernumerary"
)

// QuotaTypes lists every quota category in display order.
var QuotaTypes = []QuotaType{QuotaKCET, QuotaCOMEDK, QuotaManagement, QuotaSupernumerary}

// Valid reports whether q is one of the four known categories.
func (q QuotaType) Valid() bool {
	switch q {
	case QuotaKCET, QuotaCOMEDK, QuotaManagement, QuotaSupernumerary:
		return true
	}
	return false
}

// Order returns the display position of q, or len(QuotaTypes) when q is unknown.
func (q QuotaType) Order() int {
	for i, t := range QuotaTypes {
		if t == q {
			return i
		}
	}
	return len(QuotaTypes)
}

// ParseQuotaType accepts the canonical names case-insensitively.
func ParseQuotaType(s string) (QuotaType, error) {
	s = strings.TrimSpace(s)
	for _, t := range QuotaTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown quota type %q", s)
}

// QuotaCounter is the capacity ledger row for one quota of one program.
// Allocated only grows through a successful reservation and only shrinks
// through an explicit release.
type QuotaCounter struct {
	ProgramID  uint64    `json:"program_id"`
	QuotaType  QuotaType `json:"quota_type"`
	TotalSeats int       `json:"total_seats"`
	Allocated  int       `json:"allocated"`
}

// Remaining is total_seats - allocated.
func (c QuotaCounter) Remaining() int { return c.TotalSeats - c.Allocated }

// Consistent reports whether 0 <= allocated <= total_seats.
func (c QuotaCounter) Consistent() bool {
	return c.Allocated >= 0 && c.Allocated <= c.TotalSeats
}
