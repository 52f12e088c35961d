// Package server exposes the HTTP surface: a trigger endpoint for matching
// runs, health, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openlend/lendmatch/internal/config"
	"github.com/openlend/lendmatch/internal/lending/matching"
	"github.com/openlend/lendmatch/internal/lending/model"
)

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	cfg    config.HTTPServerConfig
	engine *matching.Engine
	logger *zap.Logger
	router *gin.Engine
	http   *http.Server
}

// New builds the router and handlers.
func New(cfg config.HTTPServerConfig, engine *matching.Engine, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		router: router,
	}

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}))
	router.Use(s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/matching/runs", s.handleRunMatching)

	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router returns the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runRequest is the trigger payload. Criteria and targets are optional; an
// empty body runs a plain full scan.
type runRequest struct {
	AsOf                *time.Time        `json:"as_of"`
	BatchSize           int               `json:"batch_size" binding:"omitempty,min=1,max=1000"`
	MaxTotalProcessed   int               `json:"max_total_processed" binding:"omitempty,min=1"`
	TargetApplicationID *uuid.UUID        `json:"target_application_id"`
	TargetOfferID       *uuid.UUID        `json:"target_offer_id"`
	Strategy            string            `json:"strategy" binding:"omitempty,oneof=standard enhanced targeted legacy"`
	Lender              *lenderCriteria   `json:"lender_criteria"`
	Borrower            *borrowerCriteria `json:"borrower_criteria"`
}

type lenderCriteria struct {
	DurationOptions    []int   `json:"duration_options" binding:"omitempty,dive,min=1"`
	FixedInterestRate  *string `json:"fixed_interest_rate"`
	MinPrincipalAmount *string `json:"min_principal_amount"`
	MaxPrincipalAmount *string `json:"max_principal_amount"`
	CollateralCurrency string  `json:"collateral_currency"`
	PrincipalCurrency  string  `json:"principal_currency"`
}

type borrowerCriteria struct {
	FixedDuration              *int    `json:"fixed_duration" binding:"omitempty,min=1"`
	FixedPrincipalAmount       *string `json:"fixed_principal_amount"`
	MaxInterestRate            *string `json:"max_interest_rate"`
	PreferInstitutionalLenders bool    `json:"prefer_institutional_lenders"`
	CollateralCurrency         string  `json:"collateral_currency"`
	PrincipalCurrency          string  `json:"principal_currency"`
}

func (s *Server) handleRunMatching(c *gin.Context) {
	// An empty body (EOF) runs a plain full scan; chunked bodies without a
	// Content-Length still get bound.
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	rc, err := req.toRunConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	rc.Trigger = "api"

	summary, err := s.engine.Run(c.Request.Context(), rc)
	if err != nil {
		status := http.StatusInternalServerError
		kind := model.ErrorKind(err)
		switch kind {
		case "validation":
			status = http.StatusBadRequest
		case "strategy_unsupported":
			status = http.StatusUnprocessableEntity
		case "not_found":
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": kind, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (r *runRequest) toRunConfig() (matching.RunConfig, error) {
	rc := matching.RunConfig{
		BatchSize:           r.BatchSize,
		MaxTotalProcessed:   r.MaxTotalProcessed,
		TargetApplicationID: r.TargetApplicationID,
		TargetOfferID:       r.TargetOfferID,
		Strategy:            matching.StrategyKind(r.Strategy),
	}
	if r.AsOf != nil {
		rc.AsOf = *r.AsOf
	}

	if r.Lender != nil {
		lc := &model.LenderCriteria{
			DurationOptions:    r.Lender.DurationOptions,
			CollateralCurrency: r.Lender.CollateralCurrency,
			PrincipalCurrency:  r.Lender.PrincipalCurrency,
		}
		var err error
		if lc.FixedInterestRate, err = parseAmount("fixed_interest_rate", r.Lender.FixedInterestRate); err != nil {
			return rc, err
		}
		if lc.MinPrincipalAmount, err = parseAmount("min_principal_amount", r.Lender.MinPrincipalAmount); err != nil {
			return rc, err
		}
		if lc.MaxPrincipalAmount, err = parseAmount("max_principal_amount", r.Lender.MaxPrincipalAmount); err != nil {
			return rc, err
		}
		rc.Lender = lc
	}

	if r.Borrower != nil {
		bc := &model.BorrowerCriteria{
			FixedDuration:              r.Borrower.FixedDuration,
			PreferInstitutionalLenders: r.Borrower.PreferInstitutionalLenders,
			CollateralCurrency:         r.Borrower.CollateralCurrency,
			PrincipalCurrency:          r.Borrower.PrincipalCurrency,
		}
		var err error
		if bc.FixedPrincipalAmount, err = parseAmount("fixed_principal_amount", r.Borrower.FixedPrincipalAmount); err != nil {
			return rc, err
		}
		if bc.MaxInterestRate, err = parseAmount("max_interest_rate", r.Borrower.MaxInterestRate); err != nil {
			return rc, err
		}
		rc.Borrower = bc
	}

	return rc, nil
}

func parseAmount(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
