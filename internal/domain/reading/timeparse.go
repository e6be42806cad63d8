package reading

import (
	"time"
)

// dateLayout accepts one- or two-digit months and days.
const dateLayout = "2006-1-2"

// timestampLayouts accept ISO 8601 timestamps with a "T" or space separator,
// one- or two-digit clock fields, optional seconds and fraction, and an
// optional zone. time.Parse returns
// UTC for layouts without a zone.
var timestampLayouts = func() []string {
	var out []string
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:4:5.999999999", "15:4"} {
			for _, zone := range []string{"Z07:00", "Z0700", "Z07", ""} {
				out = append(out, dateLayout+sep+clock+zone)
			}
		}
	}
	return out
}()

// ParseTimestamp parses a full timestamp and normalises it to UTC at the
// store's microsecond resolution.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), true
		}
	}
	return time.Time{}, false
}

// lastInstant is the final representable instant of a UTC day in the store.
const lastInstant = 24*time.Hour - time.Microsecond

// ParseBound normalises a start or end query value. A timestamp is used as
// is. A bare date covers the whole UTC day: upper bounds expand to
// 23:59:59.999999, lower bounds to midnight.
func ParseBound(s string, upper bool) (time.Time, bool) {
	if t, ok := ParseTimestamp(s); ok {
		return t, true
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	if upper {
		return d.Add(lastInstant), true
	}
	return d, true
}
