package nottorney

import (
	"fmt"
	"strings"
	"time"
)

// watermarkLayout is the date-and-seconds prefix of the service's
// ANKIHUB_DATETIME_FORMAT_STR, an ISO-8601-like encoding with fixed
// microsecond precision; formatWatermark appends the six-digit fraction
// and the trailing "Z". A watermark received from the service is parsed
// into a time.Time and re-formatted with formatWatermark when it is sent
// back as "since", not passed through as the original string.
const watermarkLayout = "2006-01-02T15:04:05"

// formatWatermark renders t the way the service expects: fixed six-digit
// microseconds, no trailing-zero trimming, trailing "Z" for UTC.
func formatWatermark(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%06dZ", t.Format(watermarkLayout), t.Nanosecond()/1000)
}

// parseWatermark parses the service's datetime format. It is lenient about
// the fractional-second width, since the service is free to omit trailing
// zeros on its end even though the client never does on its own.
func parseWatermark(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999Z",
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05Z",
		watermarkLayout,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("nottorney: invalid watermark %q", s)
}

// maxWatermark returns the later of a and b, treating a nil pointer as
// "no watermark yet" rather than the zero time.
func maxWatermark(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
