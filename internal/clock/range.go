package clock

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeRange is returned for malformed range strings and ranges
// whose start is not before their end.
var ErrInvalidTimeRange = errors.New("clock: invalid time range")

// MaxOffset is the span of the 33-bit PCR base, about 26.5 hours. No bound
// past it can be reached.
const MaxOffset = time.Duration(1<<33) * time.Second / TicksPerSecond

// Range is a time segment; both bounds are offsets on the PCR clock.
type Range struct {
	Start time.Duration
	End   time.Duration
}

func (r Range) String() string {
	return formatOffset(r.Start) + "-" + formatOffset(r.End)
}

// NewRange validates start < end.
func NewRange(start, end time.Duration) (Range, error) {
	if start < 0 || start >= end {
		return Range{}, fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTimeRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// ParseRange parses "START-END" where each bound is [[HH:]MM:]SS with an
// optional fractional part on the seconds, e.g. "00:05-00:10" or
// "1:02:03.5-1:05:00".
func ParseRange(s string) (Range, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("%w: %q has no '-' separator", ErrInvalidTimeRange, s)
	}
	start, err := ParseOffset(startStr)
	if err != nil {
		return Range{}, err
	}
	end, err := ParseOffset(endStr)
	if err != nil {
		return Range{}, err
	}
	return NewRange(start, end)
}

// ParseOffset parses one [[HH:]MM:]SS[.frac] bound.
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if s == "" || len(parts) > 3 {
		return 0, fmt.Errorf("%w: bad offset %q", ErrInvalidTimeRange, s)
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs < 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return 0, fmt.Errorf("%w: bad seconds in %q", ErrInvalidTimeRange, s)
	}
	if len(parts) > 1 && secs >= 60 {
		return 0, fmt.Errorf("%w: seconds out of range in %q", ErrInvalidTimeRange, s)
	}
	if secs > MaxOffset.Seconds() {
		return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidTimeRange, s, MaxOffset)
	}

	total := time.Duration(secs * float64(time.Second))
	units := []time.Duration{time.Minute, time.Hour}
	for i, j := len(parts)-2, 0; i >= 0; i, j = i-1, j+1 {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad field %q in %q", ErrInvalidTimeRange, parts[i], s)
		}
		if j == 0 && i > 0 && n >= 60 {
			return 0, fmt.Errorf("%w: minutes out of range in %q", ErrInvalidTimeRange, s)
		}
		if n > int(MaxOffset/units[j]) {
			return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidTimeRange, s, MaxOffset)
		}
		total += time.Duration(n) * units[j]
	}
	if total > MaxOffset {
		return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidTimeRange, s, MaxOffset)
	}
	return total, nil
}

func formatOffset(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := float64(d%time.Minute) / float64(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%06.3f", h, m, s)
	}
	return fmt.Sprintf("%02d:%06.3f", m, s)
}
