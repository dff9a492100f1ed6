package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/admission-allocation/internal/checklist"
	"github.com/iliyamo/admission-allocation/internal/model"
)

// AddDocument appends a Pending document to the applicant's checklist.
// Names are not deduplicated.
func (s *AllocationService) AddDocument(ctx context.Context, applicantID uint64, name string) (*model.Document, error) {
	if applicantID == 0 {
		return nil, fmt.Errorf("%w: applicant_id is required", ErrValidation)
	}
	doc, err := checklist.New(applicantID, name, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.Applicant(ctx, applicantID); err != nil {
			return notFound(err, "applicant %d", applicantID)
		}
		return tx.CreateDocument(ctx, doc)
	})
	if err != nil {
		s.logFailure("add_document", err, zap.Uint64("applicant_id", applicantID))
		return nil, err
	}
	return doc, nil
}

// AdvanceDocument moves a document one step forward.
func (s *AllocationService) AdvanceDocument(ctx context.Context, documentID uint64, target model.DocumentStatus) (*model.Document, error) {
	return s.advanceDocument(ctx, 0, documentID, target)
}

// AdvanceApplicantDocument is AdvanceDocument scoped to one applicant: a
// document that belongs to someone else is reported as not found.
func (s *AllocationService) AdvanceApplicantDocument(ctx context.Context, applicantID, documentID uint64, target model.DocumentStatus) (*model.Document, error) {
	if applicantID == 0 {
		return nil, fmt.Errorf("%w: applicant_id is required", ErrValidation)
	}
	return s.advanceDocument(ctx, applicantID, documentID, target)
}

func (s *AllocationService) advanceDocument(ctx context.Context, applicantID, documentID uint64, target model.DocumentStatus) (*model.Document, error) {
	if documentID == 0 {
		return nil, fmt.Errorf("%w: document_id is required", ErrValidation)
	}
	var doc *model.Document
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		d, err := tx.DocumentForUpdate(ctx, documentID)
		if err != nil {
			return notFound(err, "document %d", documentID)
		}
		if applicantID != 0 && d.ApplicantID != applicantID {
			return fmt.Errorf("%w: document %d for applicant %d", ErrNotFound, documentID, applicantID)
		}
		if err := checklist.Advance(d, target, s.now()); err != nil {
			return err
		}
		if err := tx.SaveDocument(ctx, d); err != nil {
			if errors.Is(err, ErrStaleRecord) {
				return fmt.Errorf("%w: document %d changed concurrently", ErrInvalidDocumentTransition, documentID)
			}
			return err
		}
		doc = d
		return nil
	})
	s.metrics.ObserveDocumentTransition(string(target), outcome(err))
	if err != nil {
		s.logFailure("advance_document", err, zap.Uint64("document_id", documentID), zap.String("target", string(target)))
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns the applicant's checklist and its summary.
func (s *AllocationService) ListDocuments(ctx context.Context, applicantID uint64) ([]model.Document, checklist.Summary, error) {
	if applicantID == 0 {
		return nil, checklist.Summary{}, fmt.Errorf("%w: applicant_id is required", ErrValidation)
	}
	var docs []model.Document
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.Applicant(ctx, applicantID); err != nil {
			return notFound(err, "applicant %d", applicantID)
		}
		var err error
		docs, err = tx.Documents(ctx, applicantID)
		return err
	})
	if err != nil {
		return nil, checklist.Summary{}, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, checklist.Summarize(docs), nil
}
