package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admission-allocation/internal/checklist"
	"github.com/iliyamo/admission-allocation/internal/model"
)

type addDocumentRequest struct {
	DocumentName string `json:"document_name" validate:"required,max=255"`
}

type advanceDocumentRequest struct {
	Status string `json:"status" validate:"required"`
}

type checklistResponse struct {
	ApplicantID uint64            `json:"applicant_id"`
	Documents   []model.Document  `json:"documents"`
	Summary     checklist.Summary `json:"summary"`
}

// AddDocument handles POST /v1/applicants/:id/documents.
func (h *AdmissionHandler) AddDocument(c echo.Context) error {
	applicantID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid applicant id")
	}
	var body addDocumentRequest
	if err := bindValid(c, &body); err != nil {
		return writeError(c, err)
	}
	doc, err := h.svc.AddDocument(c.Request().Context(), applicantID, body.DocumentName)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// ListDocuments handles GET /v1/applicants/:id/documents.
func (h *AdmissionHandler) ListDocuments(c echo.Context) error {
	applicantID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid applicant id")
	}
	docs, sum, err := h.svc.ListDocuments(c.Request().Context(), applicantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, checklistResponse{ApplicantID: applicantID, Documents: docs, Summary: sum})
}

// AdvanceDocument handles PATCH /v1/applicants/:id/documents/:docId.
func (h *AdmissionHandler) AdvanceDocument(c echo.Context) error {
	applicantID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid applicant id")
	}
	docID, ok := pathID(c, "docId")
	if !ok {
		return badRequest(c, "invalid document id")
	}
	var body advanceDocumentRequest
	if err := bindValid(c, &body); err != nil {
		return writeError(c, err)
	}
	target, err := checklist.ParseStatus(body.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	doc, err := h.svc.AdvanceApplicantDocument(c.Request().Context(), applicantID, docID, target)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}
