package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a parsed "HH:MM-HH:MM" window expressed in minutes since midnight.
// A range whose start is after its end wraps past midnight.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeRange parses a "HH:MM-HH:MM" window.
func ParseTimeRange(value string) (TimeRange, error) {
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("time range %q: missing separator", value)
	}
	start, err := parseClock(startRaw)
	if err != nil {
		return TimeRange{}, fmt.Errorf("time range %q: %w", value, err)
	}
	end, err := parseClock(endRaw)
	if err != nil {
		return TimeRange{}, fmt.Errorf("time range %q: %w", value, err)
	}
	return TimeRange{Start: start, End: end}, nil
}

// Contains reports whether the wall clock of t falls inside the window, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	if r.Start <= r.End {
		return now >= r.Start && now <= r.End
	}
	return now >= r.Start || now <= r.End
}

func parseClock(value string) (int, error) {
	hourRaw, minuteRaw, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, errors.New("clock must be HH:MM")
	}
	hour, err := strconv.Atoi(hourRaw)
	if err != nil {
		return 0, fmt.Errorf("hour: %w", err)
	}
	minute, err := strconv.Atoi(minuteRaw)
	if err != nil {
		return 0, fmt.Errorf("minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %02d:%02d out of range", hour, minute)
	}
	return hour*60 + minute, nil
}
