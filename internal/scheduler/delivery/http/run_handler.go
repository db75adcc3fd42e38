package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/internal/scheduler/service"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/utils"
)

// RunCanceller flags an in-flight run for cancellation.
type RunCanceller interface {
	Cancel(symbol string, periodStart time.Time) bool
}

// RunHandler handles the operator view of job runs.
type RunHandler struct {
	queryService service.QueryService
	canceller    RunCanceller
	logger       *logger.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(queryService service.QueryService, canceller RunCanceller, logger *logger.Logger) *RunHandler {
	return &RunHandler{queryService: queryService, canceller: canceller, logger: logger}
}

// RegisterRoutes registers the run routes to the Echo group.
func (h *RunHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRuns)
	g.POST("/:symbol/cancel", h.CancelRun)
}

// GetRuns godoc
// @Summary List job runs
// @Description List job runs with their status and last error, ordered by period ascending
// @Tags runs
// @Produce  json
// @Param   symbol  query  string false "Ticker symbol"
// @Param   status  query  string false "Run status"
// @Param   from    query  string false "Period start lower bound (RFC3339 or YYYY-MM-DD)"
// @Param   to      query  string false "Period start upper bound, exclusive"
// @Param   limit   query  int    false "Maximum rows"
// @Success 200 {array} dto.RunResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /runs [get]
func (h *RunHandler) GetRuns(c echo.Context) error {
	filter := entity.JobRunFilter{
		Symbol: c.QueryParam("symbol"),
		Status: entity.JobRunStatus(strings.ToLower(c.QueryParam("status"))),
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := utils.ParseTimeParam(v)
		if err != nil {
			return errorJSON(c, common.NewValidationError("from", "must be RFC3339 or YYYY-MM-DD"))
		}
		filter.From = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := utils.ParseTimeParam(v)
		if err != nil {
			return errorJSON(c, common.NewValidationError("to", "must be RFC3339 or YYYY-MM-DD"))
		}
		filter.To = t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errorJSON(c, common.NewValidationError("limit", "must be a positive integer"))
		}
		filter.Limit = n
	}

	runs, err := h.queryService.GetRuns(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, runs)
}

// CancelRun godoc
// @Summary Cancel an in-flight run
// @Description Flag a running job run for cancellation. It stops at the next stage boundary.
// @Tags runs
// @Produce  json
// @Param   symbol        path   string true "Ticker symbol"
// @Param   period_start  query  string true "Period start (RFC3339 or YYYY-MM-DD)"
// @Success 200 {object} dto.CancelResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.CancelResponse
// @Router /runs/{symbol}/cancel [post]
func (h *RunHandler) CancelRun(c echo.Context) error {
	periodStart, err := utils.ParseTimeParam(c.QueryParam("period_start"))
	if err != nil {
		return errorJSON(c, common.NewValidationError("period_start", "must be RFC3339 or YYYY-MM-DD"))
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	resp := dto.CancelResponse{
		Symbol:      symbol,
		PeriodStart: periodStart,
		Cancelled:   h.canceller.Cancel(symbol, periodStart),
	}
	if !resp.Cancelled {
		return c.JSON(http.StatusNotFound, resp)
	}

	h.logger.InfoContext(c.Request().Context(), "Run cancellation requested",
		logger.StringField("symbol", symbol),
		logger.Field("period_start", periodStart))
	return c.JSON(http.StatusOK, resp)
}
