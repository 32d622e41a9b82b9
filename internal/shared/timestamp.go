package shared

import "time"

// Now returns the current time truncated to second precision, matching the
// granularity stored in the task and session tables.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// UnixNow returns the current Unix timestamp in seconds.
func UnixNow() int64 {
	return time.Now().Unix()
}

// ExpiringWithin reports whether a Unix expiration timestamp falls within
// skewSeconds of now, so callers can refresh credentials before they expire
// rather than after.
func ExpiringWithin(expirationUnix int64, skewSeconds int64) bool {
	return expirationUnix < time.Now().Unix()+skewSeconds
}
