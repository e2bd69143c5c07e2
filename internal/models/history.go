package models

import (
	"fmt"
	"strings"
)

// TimeRange is a chart window selectable by the user.
type TimeRange string

const (
	Range1W TimeRange = "1W"
	Range1M TimeRange = "1M"
	Range3M TimeRange = "3M"
	Range1Y TimeRange = "1Y"

	DefaultRange = Range1M
)

// TimeRanges lists the accepted ranges in display order.
var TimeRanges = []TimeRange{Range1W, Range1M, Range3M, Range1Y}

// Valid reports whether r is one of the accepted ranges.
func (r TimeRange) Valid() bool {
	for _, v := range TimeRanges {
		if r == v {
			return true
		}
	}
	return false
}

// ParseTimeRange normalises and validates a range string.
func ParseTimeRange(s string) (TimeRange, error) {
	r := TimeRange(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid time range %q (want one of 1W, 1M, 3M, 1Y)", s)
	}
	return r, nil
}

// HistoryPoint is one (date label, value) sample of a portfolio's value.
type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}
