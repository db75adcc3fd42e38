package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"golang-market-insight/internal/scheduler/dto"
	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/utils"
)

// defaultRange is used when a request omits from.
const defaultRange = 90 * 24 * time.Hour

func errorJSON(c echo.Context, err error) error {
	if errors.Is(err, common.ErrValidation) {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}

// parseRange reads the from and to query params. to defaults to now and from to 90 days before to.
func parseRange(c echo.Context, now time.Time) (time.Time, time.Time, error) {
	to := now
	if v := c.QueryParam("to"); v != "" {
		t, err := utils.ParseTimeParam(v)
		if err != nil {
			return time.Time{}, time.Time{}, common.NewValidationError("to", "must be RFC3339 or YYYY-MM-DD")
		}
		to = t
	}
	from := to.Add(-defaultRange)
	if v := c.QueryParam("from"); v != "" {
		t, err := utils.ParseTimeParam(v)
		if err != nil {
			return time.Time{}, time.Time{}, common.NewValidationError("from", "must be RFC3339 or YYYY-MM-DD")
		}
		from = t
	}
	return from, to, nil
}
