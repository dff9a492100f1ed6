// Package router registers the HTTP surface of the admission engine.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/admission-allocation/internal/handler"
	"github.com/iliyamo/admission-allocation/internal/middleware"
)

// Options carries what RegisterRoutes needs beyond the handlers.
type Options struct {
	// JWTSecret enables bearer-token verification and the role gate on
	// every /v1 route.  Empty leaves /v1 open (local runs).
	JWTSecret string

	// RateLimit guards the state-changing routes.  Nil disables it.
	RateLimit echo.MiddlewareFunc

	// Health backs /healthz; nil only reports liveness.
	Health handler.Pinger

	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes mounts the operational endpoints and the /v1 API.
func RegisterRoutes(e *echo.Echo, h *handler.AdmissionHandler, opts Options) {
	e.GET("/healthz", handler.Health(opts.Health))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	writes := []echo.MiddlewareFunc{}
	if opts.JWTSecret != "" {
		v1.Use(middleware.JWTAuth(opts.JWTSecret))
		writes = append(writes, middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOfficer))
	}
	if opts.RateLimit != nil {
		writes = append(writes, opts.RateLimit)
	}

	v1.POST("/admissions/allocate", h.Allocate, writes...)
	v1.GET("/admissions", h.List)
	v1.GET("/admissions/:id", h.Get)
	v1.PATCH("/admissions/:id/fee", h.MarkFeePaid, writes...)
	v1.PATCH("/admissions/:id/confirm", h.Confirm, writes...)
	v1.GET("/programs/:id/quota-counters", h.QuotaCounters)

	v1.POST("/applicants/:id/documents", h.AddDocument, writes...)
	v1.GET("/applicants/:id/documents", h.ListDocuments)
	v1.PATCH("/applicants/:id/documents/:docId", h.AdvanceDocument, writes...)
}
