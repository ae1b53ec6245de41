package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// parseFlexibleTime tolerates the timestamp formats different SQL drivers hand
// back (RFC3339, sqlite's space-separated form, unix strings).
func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime normalizes a raw scanned column into a time.Time. Drivers return
// time.Time, string or []byte depending on column affinity.
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
