package query

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDateRange is returned for date ranges that cannot be resolved.
var ErrInvalidDateRange = errors.New("query: invalid date range")

const (
	// InputLayout is the layout of explicit range bounds.
	InputLayout = "20060102_150405"
	// OutputLayout is the timestamp layout the service expects in queries.
	OutputLayout = "2006-01-02T15:04:05Z"
)

// DateRange is either a relative phrase ("7 days", "2 months") resolved
// against now, or an explicit pair of bounds. An empty End means now.
type DateRange struct {
	Relative string `json:"relative,omitempty" yaml:"relative,omitempty"`
	Start    string `json:"start,omitempty" yaml:"start,omitempty"`
	End      string `json:"end,omitempty" yaml:"end,omitempty"`
}

var boundLayouts = []string{
	InputLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

func parseBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidDateRange, s)
}

// ResolveDateRange returns the absolute bounds of r.
func ResolveDateRange(r DateRange, now time.Time) (start, end time.Time, err error) {
	if rel := strings.TrimSpace(r.Relative); rel != "" {
		start, err = ParseRelative(rel, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start.UTC(), now.UTC(), nil
	}

	if strings.TrimSpace(r.Start) == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: missing start", ErrInvalidDateRange)
	}
	if start, err = parseBound(r.Start); err != nil {
		return time.Time{}, time.Time{}, err
	}
	end = now.UTC()
	if strings.TrimSpace(r.End) != "" {
		if end, err = parseBound(r.End); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s",
			ErrInvalidDateRange, end.Format(OutputLayout), start.Format(OutputLayout))
	}
	return start, end, nil
}

var relativePhrase = regexp.MustCompile(
	`^(?:(?:last|past)\s+)?(\d+(?:\.\d+)?)\s*(seconds?|secs?|s|minutes?|mins?|hours?|hrs?|h|days?|d|weeks?|w|months?|years?|y)(?:\s+ago)?$`)

// ParseRelative resolves a phrase such as "7 days", "2 months ago" or
// "last 24 hours" to the instant that far before now. A Go duration string
// ("36h") is accepted as well.
func ParseRelative(phrase string, now time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	m := relativePhrase.FindStringSubmatch(p)
	if m == nil {
		d, err := time.ParseDuration(p)
		if err != nil || d < 0 {
			return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidDateRange, phrase)
		}
		return now.Add(-d), nil
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDateRange, phrase, err)
	}

	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "month"):
		return now.AddDate(0, -int(math.Round(n)), 0), nil
	case strings.HasPrefix(unit, "y"):
		return now.AddDate(-int(math.Round(n)), 0, 0), nil
	}

	var d time.Duration
	switch {
	case strings.HasPrefix(unit, "s"):
		d = time.Second
	case strings.HasPrefix(unit, "m"):
		d = time.Minute
	case strings.HasPrefix(unit, "h"):
		d = time.Hour
	case strings.HasPrefix(unit, "d"):
		d = 24 * time.Hour
	case strings.HasPrefix(unit, "w"):
		d = 7 * 24 * time.Hour
	}
	return now.Add(-time.Duration(n * float64(d))), nil
}
