package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinBars/internal/domain/models"
	"FinBars/internal/services/candles"
	"FinBars/internal/usecase"
	xhttp "FinBars/pkg/http"
	xlogger "FinBars/pkg/logger"
	xutil "FinBars/pkg/util"

	"github.com/labstack/echo/v4"
)

// Defaults fill in what a request leaves out.
type Defaults struct {
	Intervals   []int
	Lookback    time.Duration
	BaseMinutes int
	Publish     bool
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// HealthChecks maps dependency names to their checks.
type HealthChecks map[string]HealthCheck

// CandlesEchoHandler serves merged candles and on-demand pipeline runs.
type CandlesEchoHandler struct {
	logger   *xlogger.Logger
	uc       *usecase.CandlesUseCase
	pipeline *usecase.Pipeline
	defaults Defaults
	checks   HealthChecks
	now      func() time.Time
}

func NewCandlesEchoHandler(
	logger *xlogger.Logger,
	uc *usecase.CandlesUseCase,
	pipeline *usecase.Pipeline,
	defaults Defaults,
	checks HealthChecks,
) *CandlesEchoHandler {
	return &CandlesEchoHandler{
		logger:   logger,
		uc:       uc,
		pipeline: pipeline,
		defaults: defaults,
		checks:   checks,
		now:      time.Now,
	}
}

func (h *CandlesEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/candles/merged", h.Merged)
	g.GET("/candles/stored", h.Stored)
	g.POST("/pipeline/run", h.Run)
}

// window resolves from/to; both empty means the trailing lookback.
func (h *CandlesEchoHandler) window(fromS, toS string) (time.Time, time.Time, *xhttp.AppError) {
	from, to := xutil.TrailingWindow(h.now(), h.defaults.Lookback, h.defaults.BaseMinutes)
	if toS != "" {
		t, ok := xutil.ParseTime(toS)
		if !ok {
			return time.Time{}, time.Time{}, xhttp.NewAppError("ERR_TIME", "to", "to must be RFC3339 or unix seconds", http.StatusBadRequest)
		}
		to = t
		if fromS == "" {
			from = to.Add(-h.defaults.Lookback)
		}
	}
	if fromS != "" {
		t, ok := xutil.ParseTime(fromS)
		if !ok {
			return time.Time{}, time.Time{}, xhttp.NewAppError("ERR_TIME", "from", "from must be RFC3339 or unix seconds", http.StatusBadRequest)
		}
		from = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, xhttp.NewAppError("ERR_RANGE", "from", "from must be before to", http.StatusBadRequest)
	}
	return from, to, nil
}

func (h *CandlesEchoHandler) intervals(req []int) []int {
	if len(req) == 0 {
		return h.defaults.Intervals
	}
	return req
}

// toAppError maps core input errors to 400, market-data HTTP failures to 502
// and everything else to 500.
func (h *CandlesEchoHandler) toAppError(msg string, err error) *xhttp.AppError {
	var se *xhttp.StatusError
	switch {
	case errors.Is(err, candles.ErrEmptyInput):
		return xhttp.NewAppError("ERR_EMPTY_INPUT", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, candles.ErrInvalidInterval):
		return xhttp.NewAppError("ERR_INVALID_INTERVAL", "intervals", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, candles.ErrIncompatibleSeries):
		return xhttp.NewAppError("ERR_INCOMPATIBLE_SERIES", "intervals", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.As(err, &se):
		h.logger.Warn(msg, xlogger.Error(err), xlogger.Int("upstream_status", se.Code), xlogger.Bool("retryable", se.Retryable()))
		return xhttp.UpstreamError(msg).WithError(err)
	}
	h.logger.Error(msg, xlogger.Error(err))
	return xhttp.InternalError(msg).WithError(err)
}

func (h *CandlesEchoHandler) Merged(c echo.Context) error {
	req := &models.MergedCandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := h.window(req.From, req.To)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	interp, err := candles.ParseInterpolation(req.Interpolation)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	res, err := h.uc.GetMerged(c.Request().Context(), usecase.GetMergedParams{
		Symbol:        req.Symbol,
		From:          from,
		To:            to,
		Intervals:     h.intervals(req.Intervals),
		Interpolation: interp,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, h.toAppError("merged candles failed", err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *CandlesEchoHandler) Stored(c echo.Context) error {
	req := &models.StoredCandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := h.window(req.From, req.To)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	res, err := h.uc.GetStored(c.Request().Context(), req.Symbol, from, to)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.toAppError("stored candles failed", err))
	}
	if res.Count == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no stored candles for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, res)
}

// Run executes the pipeline for many symbols; per-symbol failures are
// reported in the summaries with a 200.
func (h *CandlesEchoHandler) Run(c echo.Context) error {
	req := &models.PipelineRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := h.window(req.From, req.To)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	interp, err := candles.ParseInterpolation(req.Interpolation)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	symbols := xutil.NormalizeSymbols(req.Symbols)
	summaries := h.pipeline.RunAll(c.Request().Context(), symbols, usecase.RunParams{
		From:          from,
		To:            to,
		Intervals:     h.intervals(req.Intervals),
		Interpolation: interp,
		Persist:       req.Persist,
		Publish:       h.defaults.Publish,
	})
	return xhttp.SuccessResponse(c, summaries)
}

func (h *CandlesEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := xhttp.HealthResponse{Status: "ok", Checks: map[string]string{}}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if resp.Status != "ok" {
		return xhttp.ServiceUnavailableResponse(c, resp)
	}
	return xhttp.SuccessResponse(c, resp)
}
