package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admission-allocation/internal/lifecycle"
	"github.com/iliyamo/admission-allocation/internal/middleware"
	"github.com/iliyamo/admission-allocation/internal/model"
	"github.com/iliyamo/admission-allocation/internal/service"
)

// AdmissionHandler exposes the allocation service over HTTP.
type AdmissionHandler struct {
	svc *service.AllocationService
}

// NewAdmissionHandler panics on a nil service.
func NewAdmissionHandler(svc *service.AllocationService) *AdmissionHandler {
	if svc == nil {
		panic("nil service passed to NewAdmissionHandler")
	}
	return &AdmissionHandler{svc: svc}
}

type allocateRequest struct {
	ApplicantID uint64 `json:"applicant_id" validate:"required"`
	ProgramID   uint64 `json:"program_id" validate:"required"`
	QuotaType   string `json:"quota_type" validate:"required"`
}

// Allocate handles POST /v1/admissions/allocate.
func (h *AdmissionHandler) Allocate(c echo.Context) error {
	var body allocateRequest
	if err := bindValid(c, &body); err != nil {
		return writeError(c, err)
	}
	quota, err := model.ParseQuotaType(body.QuotaType)
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %v", service.ErrValidation, err))
	}
	adm, err := h.svc.Allocate(actorContext(c), service.AllocateRequest{
		ApplicantID: body.ApplicantID,
		ProgramID:   body.ProgramID,
		QuotaType:   quota,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, adm)
}

// Get handles GET /v1/admissions/:id.
func (h *AdmissionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid admission id")
	}
	adm, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

type listRequest struct {
	ProgramID uint64 `query:"program_id"`
	Stage     string `query:"stage"`
	AfterID   uint64 `query:"after_id"`
	Limit     int    `query:"limit" validate:"gte=0"`
}

type listResponse struct {
	Admissions  []model.Admission `json:"admissions"`
	// NextAfterID is the after_id of the next page, or 0 on the last page.
	NextAfterID uint64            `json:"next_after_id"`
}

// List handles GET /v1/admissions?program_id=&stage=&after_id=&limit=.
func (h *AdmissionHandler) List(c echo.Context) error {
	var q listRequest
	if err := bindValid(c, &q); err != nil {
		return writeError(c, err)
	}
	admissions, err := h.svc.ListAdmissions(c.Request().Context(), service.AdmissionFilter{
		ProgramID: q.ProgramID,
		Stage:     lifecycle.Stage(q.Stage),
		AfterID:   q.AfterID,
		Limit:     q.Limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	resp := listResponse{Admissions: admissions}
	limit := q.Limit
	if limit == 0 {
		limit = service.DefaultListLimit
	}
	if len(admissions) == limit {
		resp.NextAfterID = admissions[len(admissions)-1].ID
	}
	return c.JSON(http.StatusOK, resp)
}

// MarkFeePaid handles PATCH /v1/admissions/:id/fee.
func (h *AdmissionHandler) MarkFeePaid(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid admission id")
	}
	adm, err := h.svc.MarkFeePaid(actorContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

// Confirm handles PATCH /v1/admissions/:id/confirm.
func (h *AdmissionHandler) Confirm(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid admission id")
	}
	adm, err := h.svc.Confirm(actorContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

type counterView struct {
	model.QuotaCounter
	Remaining int `json:"remaining"`
}

type countersResponse struct {
	ProgramID uint64        `json:"program_id"`
	Counters  []counterView `json:"counters"`
}

// QuotaCounters handles GET /v1/programs/:id/quota-counters.
func (h *AdmissionHandler) QuotaCounters(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid program id")
	}
	counters, err := h.svc.QuotaCounters(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	resp := countersResponse{ProgramID: id, Counters: make([]counterView, 0, len(counters))}
	for _, qc := range counters {
		resp.Counters = append(resp.Counters, counterView{QuotaCounter: qc, Remaining: qc.Remaining()})
	}
	return c.JSON(http.StatusOK, resp)
}

// actorContext carries the authenticated officer into service events.
func actorContext(c echo.Context) context.Context {
	return service.WithActor(c.Request().Context(), middleware.UserID(c))
}
