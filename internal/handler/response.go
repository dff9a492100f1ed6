package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admission-allocation/internal/service"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps a service error onto an HTTP status.  Internal errors
// are not echoed to the client.
func writeError(c echo.Context, err error) error {
	code := errorCode(err)
	switch service.KindOf(err) {
	case service.KindValidation:
		return c.JSON(http.StatusBadRequest, errorBody{code, err.Error()})
	case service.KindNotFound:
		return c.JSON(http.StatusNotFound, errorBody{code, err.Error()})
	case service.KindConflict, service.KindCapacity:
		return c.JSON(http.StatusConflict, errorBody{code, err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorBody{"internal", "internal error"})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrQuotaMismatch):
		return "quota_mismatch"
	case errors.Is(err, service.ErrValidation):
		return "validation"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrAlreadyAllocated):
		return "already_allocated"
	case errors.Is(err, service.ErrSeatUnavailable):
		return "seat_unavailable"
	case errors.Is(err, service.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, service.ErrInvalidDocumentTransition):
		return "invalid_document_transition"
	}
	return "internal"
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{"validation", msg})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// bindValid binds the request body into dst and runs the validator.  The
// returned error wraps service.ErrValidation.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", service.ErrValidation)
	}
	if err := c.Validate(dst); err != nil {
		return fmt.Errorf("%w: %s", service.ErrValidation, err.Error())
	}
	return nil
}
