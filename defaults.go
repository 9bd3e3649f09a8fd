package cassync

import "time"

const (
	DefaultSaveInterval = time.Second
	DefaultStaleTTL     = 5 * time.Minute
	DefaultResultTTL    = 10 * time.Minute
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
