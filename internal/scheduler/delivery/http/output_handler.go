package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/internal/scheduler/service"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/utils"
)

// OutputHandler serves computed analytics and insights.
type OutputHandler struct {
	queryService service.QueryService
	logger       *logger.Logger
}

// NewOutputHandler creates a new OutputHandler.
func NewOutputHandler(queryService service.QueryService, logger *logger.Logger) *OutputHandler {
	return &OutputHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the output routes to the Echo group.
func (h *OutputHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/analytics/:symbol", h.GetAnalytics)
	g.GET("/insights/:symbol", h.GetInsights)
}

// GetAnalytics godoc
// @Summary Get analytics results
// @Description Get computed metrics of a symbol, ordered by period ascending
// @Tags output
// @Produce  json
// @Param   symbol  path   string true  "Ticker symbol"
// @Param   from    query  string false "Range start (RFC3339 or YYYY-MM-DD), defaults to 90 days before to"
// @Param   to      query  string false "Range end, exclusive (RFC3339 or YYYY-MM-DD), defaults to now"
// @Success 200 {array} dto.AnalyticsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /analytics/{symbol} [get]
func (h *OutputHandler) GetAnalytics(c echo.Context) error {
	from, to, err := parseRange(c, utils.TimeNowUTC())
	if err != nil {
		return errorJSON(c, err)
	}

	results, err := h.queryService.GetAnalytics(c.Request().Context(), dto.RangeQuery{Symbol: c.Param("symbol"), From: from, To: to})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// GetInsights godoc
// @Summary Get insights
// @Description Get the current insight of each period of a symbol, ordered by period ascending
// @Tags output
// @Produce  json
// @Param   symbol  path   string true  "Ticker symbol"
// @Param   from    query  string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param   to      query  string false "Range end, exclusive (RFC3339 or YYYY-MM-DD)"
// @Success 200 {array} dto.InsightResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /insights/{symbol} [get]
func (h *OutputHandler) GetInsights(c echo.Context) error {
	from, to, err := parseRange(c, utils.TimeNowUTC())
	if err != nil {
		return errorJSON(c, err)
	}

	insights, err := h.queryService.GetInsights(c.Request().Context(), dto.RangeQuery{Symbol: c.Param("symbol"), From: from, To: to})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, insights)
}
