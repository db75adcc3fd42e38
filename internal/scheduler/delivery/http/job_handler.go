package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/internal/scheduler/service"
	"golang-market-insight/pkg/logger"
)

// Reloader re-reads job configuration and syncs it into the scheduler.
type Reloader func(ctx context.Context) error

// JobHandler exposes the scheduler registry.
type JobHandler struct {
	scheduler service.SchedulerService
	reload    Reloader
	logger    *logger.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(scheduler service.SchedulerService, reload Reloader, logger *logger.Logger) *JobHandler {
	return &JobHandler{scheduler: scheduler, reload: reload, logger: logger}
}

// RegisterRoutes registers the job routes to the Echo group.
func (h *JobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetAllJobs)
	g.POST("/reload", h.ReloadJobs)
}

func (h *JobHandler) jobs() []dto.JobResponse {
	defs := h.scheduler.Jobs()
	out := make([]dto.JobResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, dto.ToJobResponse(d))
	}
	return out
}

// GetAllJobs godoc
// @Summary Get all jobs
// @Description Get every registered job definition ordered by symbol
// @Tags jobs
// @Produce  json
// @Success 200 {array} dto.JobResponse
// @Router /jobs [get]
func (h *JobHandler) GetAllJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs())
}

// ReloadJobs godoc
// @Summary Reload job configuration
// @Description Re-read the configuration file and sync job definitions
// @Tags jobs
// @Produce  json
// @Success 200 {object} dto.ReloadResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /jobs/reload [post]
func (h *JobHandler) ReloadJobs(c echo.Context) error {
	if err := h.reload(c.Request().Context()); err != nil {
		h.logger.Error("Failed to reload jobs", logger.ErrorField(err))
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, dto.ReloadResponse{Jobs: h.jobs()})
}
