package utils

import (
	"time"
)

// TimeNowUTC is the clock used for period arithmetic; market data timestamps are UTC.
func TimeNowUTC() time.Time {
	return time.Now().UTC()
}

// ParseTimeParam accepts RFC3339 or a plain YYYY-MM-DD date.
func ParseTimeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
