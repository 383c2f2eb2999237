// Package timewindow turns a time window phrase into a start time.
//
// Accepted phrases are "Live" (the last five minutes), "Last N <unit>"
// where unit is seconds, minutes, hours, days or weeks (singular or plural,
// any case), and plain Go durations such as "90m".
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Live is the default window.
const Live = "Live"

// LiveDuration is how far back Live reaches.
const LiveDuration = 5 * time.Minute

// ErrInvalidWindow is returned for a phrase that cannot be parsed.
var ErrInvalidWindow = errors.New("invalid time window")

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// Parse returns the length of window.
func Parse(window string) (time.Duration, error) {
	window = strings.TrimSpace(window)
	if strings.EqualFold(window, Live) {
		return LiveDuration, nil
	}

	fields := strings.Fields(window)
	if len(fields) > 0 && strings.EqualFold(fields[0], "last") {
		return parseLast(window, fields[1:])
	}

	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}
	return d, nil
}

func parseLast(window string, fields []string) (time.Duration, error) {
	n := 1
	switch len(fields) {
	case 1:
	case 2:
		v, err := strconv.Atoi(fields[0])
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
		}
		n = v
		fields = fields[1:]
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}

	unit, ok := units[strings.TrimSuffix(strings.ToLower(fields[0]), "s")]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidWindow, window)
	}
	return time.Duration(n) * unit, nil
}

// StartTime returns now minus the length of window.
func StartTime(window string, now time.Time) (time.Time, error) {
	d, err := Parse(window)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}
