package model

import "time"

// Applicant is the subset of the intake record the allocation engine needs.
// QuotaType and ProgramID are what the applicant declared on the intake form.
type Applicant struct {
	ID              uint64    `json:"id"`
	FullName        string    `json:"full_name"`
	Mobile          string    `json:"mobile"`
	QuotaType       QuotaType `json:"quota_type"`
	ProgramID       uint64    `json:"program_id"`
	AllotmentNumber *string   `json:"allotment_number,omitempty"` // KCET/COMEDK allotment letter number
	CreatedAt       time.Time `json:"created_at"`
}
