package model

import "time"

// DocumentStatus is the verification state of a checklist document.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "Pending"
	DocumentSubmitted DocumentStatus = "Submitted"
	DocumentVerified  DocumentStatus = "Verified"
)

// Document is one entry of an applicant's document checklist.  Names are
// free text and not deduplicated.
type Document struct {
	ID           uint64         `json:"id"`
	ApplicantID  uint64         `json:"applicant_id"`
	DocumentName string         `json:"document_name"`
	Status       DocumentStatus `json:"status"`
	Version      uint32         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
