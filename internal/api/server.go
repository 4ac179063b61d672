// Package api exposes the conformance harness over HTTP so other
// implementations of the block layout can diff their kernels against
// this one.
package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qgemm/internal/conformance"
	"github.com/samcharles93/qgemm/internal/cpufeat"
	"github.com/samcharles93/qgemm/internal/logger"
)

type Server struct {
	log logger.Logger
}

func NewServer(log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/cpu", s.handleCPUInfo)
	e.POST("/v1/verify", s.handleVerify)
	e.POST("/v1/gemm", s.handleGemm)
}

func (s *Server) handleCPUInfo(c *echo.Context) error {
	return c.JSON(http.StatusOK, cpufeat.Collect())
}

func (s *Server) handleVerify(c *echo.Context) error {
	req, err := decodeJSON[VerifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	cases := req.Cases
	if len(cases) == 0 {
		cases = conformance.DefaultCases()
	}
	seed := int64(1)
	if req.Seed != nil {
		seed = *req.Seed
	}
	tolerance := conformance.DefaultTolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}

	report, err := conformance.Run(cases, seed, tolerance)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	s.log.Info("verify run", "id", report.ID, "cases", len(report.Cases), "pass", report.Pass)
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleGemm(c *echo.Context) error {
	req, err := decodeJSON[GemmRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	out, err := conformance.Execute(req.Case, req.A, req.B, req.Bias)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, GemmResponse{C: out})
}
