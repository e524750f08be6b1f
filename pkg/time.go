package pkg

import (
	"strconv"
	"strings"
	"time"
)

type unit struct {
	suffix string
	size   time.Duration
}

var coarse = []unit{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatDuration renders d compactly for logs and response headers:
// sub-second values use a single unit (ms, μs, ns) and anything longer
// shows at most the two largest units, e.g. "2m5s" or "1h30m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	switch {
	case d == 0:
		return "0"
	case d < time.Microsecond:
		return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
	case d < time.Millisecond:
		return strconv.FormatInt(d.Microseconds(), 10) + "μs"
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}

	var b strings.Builder
	parts := 0
	for _, u := range coarse {
		if d < u.size {
			if parts > 0 {
				break
			}
			continue
		}
		b.WriteString(strconv.FormatInt(int64(d/u.size), 10))
		b.WriteString(u.suffix)
		d %= u.size
		parts++
		if parts == 2 || d == 0 {
			break
		}
	}
	return b.String()
}

// FormatDwell renders a whole-minute dwell time, e.g. 95 -> "1h35m".
func FormatDwell(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	return FormatDuration(time.Duration(minutes) * time.Minute)
}
