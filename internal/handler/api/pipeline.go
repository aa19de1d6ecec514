package api

import (
	"errors"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/pipeline"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/ratelimit"

	"github.com/labstack/echo/v4"
)

// TradeRequest is the manual buy request body. Amount is optional; when
// absent the configured invest amount is used.
type TradeRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
}

// PipelineHandler exposes the pipeline over HTTP.
type PipelineHandler struct {
	logger *xlogger.Logger
	orch   *pipeline.Orchestrator
	rl     *ratelimit.Limiter
}

func NewPipelineHandler(logger *xlogger.Logger, orch *pipeline.Orchestrator) *PipelineHandler {
	return &PipelineHandler{logger: logger, orch: orch, rl: ratelimit.New()}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/state", h.State)
	g.GET("/config", h.GetConfig)
	g.POST("/config", h.SetConfig)
	g.POST("/retrain", h.Retrain)
	g.POST("/trade/buy", h.Buy)
	g.POST("/trade/sell", h.Sell)
}

func (h *PipelineHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "up"})
}

// State returns the latest published snapshot. Always succeeds: before
// the first cycle it carries the initializing status, after a failed
// cycle the stale one.
func (h *PipelineHandler) State(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.orch.Snapshot())
}

func (h *PipelineHandler) GetConfig(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.orch.Settings())
}

func (h *PipelineHandler) SetConfig(c echo.Context) error {
	req := &models.SettingsUpdate{}
	if err := c.Bind(req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed settings payload").WithError(err))
	}
	settings, err := h.orch.UpdateSettings(*req)
	if err != nil {
		h.logger.Warn("settings rejected", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, settings)
}

// Retrain flags a model retrain for the next cycle; repeated calls
// collapse into one.
func (h *PipelineHandler) Retrain(c echo.Context) error {
	h.orch.RequestRetrain()
	return xhttp.SuccessResponse(c, map[string]string{"status": "retrain scheduled"})
}

func (h *PipelineHandler) Buy(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":trade", 5, 1) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many trade requests"))
	}
	req := &TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	amount := 0.0
	if req.Amount != nil {
		amount = *req.Amount
	}
	ev, err := h.orch.Buy(amount)
	if err != nil {
		h.logger.Warn("buy rejected", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *PipelineHandler) Sell(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":trade", 5, 1) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many trade requests"))
	}
	ev, err := h.orch.Sell()
	if err != nil {
		h.logger.Warn("sell rejected", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, ev)
}

// mapError translates core sentinel errors into transport errors.
func mapError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidOperation):
		return xhttp.InvalidOperationError(err.Error())
	case errors.Is(err, models.ErrInvalidConfig):
		return xhttp.InvalidConfigError(err.Error())
	case errors.Is(err, models.ErrDataUnavailable):
		return xhttp.DataUnavailableError(err.Error())
	case errors.Is(err, models.ErrTrainingFailed):
		return xhttp.InternalError(err.Error())
	default:
		return xhttp.InternalError("unexpected error").WithError(err)
	}
}
