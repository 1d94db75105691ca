package decode

import (
	"strconv"
	"strings"
	"time"
)

// timestampFormats lists the formats tried in priority order, per spec.md
// §4.1: ISO-8601 with fractional seconds, then ISO-8601, then epoch seconds.
var timestampFormats = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp tries each prioritized format and falls back to the
// sentinel "now" on failure. A decoder must never reject a message solely
// because its timestamp could not be parsed.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC()
	}

	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}

	return time.Now().UTC()
}
