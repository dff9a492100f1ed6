// Package checklist implements the per-applicant document verification
// workflow.  Documents only move forward: Pending -> Submitted -> Verified.
package checklist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/admission-allocation/internal/model"
)

var (
	// ErrInvalidDocumentTransition is returned for any status change other
	// than Pending->Submitted or Submitted->Verified.
	ErrInvalidDocumentTransition = errors.New("invalid document transition")

	// ErrEmptyName is returned when a document name is blank.
	ErrEmptyName = errors.New("document name is required")

	// ErrUnknownStatus is returned by ParseStatus.
	ErrUnknownStatus = errors.New("unknown document status")
)

// next maps each status to the only status it may advance to.
var next = map[model.DocumentStatus]model.DocumentStatus{
	model.DocumentPending:   model.DocumentSubmitted,
	model.DocumentSubmitted: model.DocumentVerified,
}

// New returns a Pending document for the applicant.
func New(applicantID uint64, name string, now time.Time) (*model.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	now = now.UTC()
	return &model.Document{
		ApplicantID:  applicantID,
		DocumentName: name,
		Status:       model.DocumentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanAdvance reports whether from -> to is a legal transition.
func CanAdvance(from, to model.DocumentStatus) bool {
	n, ok := next[from]
	return ok && n == to
}

// Advance moves doc to target or fails with ErrInvalidDocumentTransition.
func Advance(doc *model.Document, target model.DocumentStatus, now time.Time) error {
	if !CanAdvance(doc.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDocumentTransition, doc.Status, target)
	}
	doc.Status = target
	doc.UpdatedAt = now.UTC()
	return nil
}

// ParseStatus accepts the canonical status names case-insensitively.
func ParseStatus(s string) (model.DocumentStatus, error) {
	s = strings.TrimSpace(s)
	for _, st := range []model.DocumentStatus{model.DocumentPending, model.DocumentSubmitted, model.DocumentVerified} {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Summary counts documents per status.
type Summary struct {
	Total     int  `json:"total"`
	Pending   int  `json:"pending"`
	Submitted int  `json:"submitted"`
	Verified  int  `json:"verified"`
	Complete  bool `json:"complete"`
}

// Summarize builds a Summary.  An empty checklist is not complete.
func Summarize(docs []model.Document) Summary {
	var s Summary
	for _, d := range docs {
		s.Total++
		switch d.Status {
		case model.DocumentPending:
			s.Pending++
		case model.DocumentSubmitted:
			s.Submitted++
		case model.DocumentVerified:
			s.Verified++
		}
	}
	s.Complete = s.Total > 0 && s.Verified == s.Total
	return s
}
