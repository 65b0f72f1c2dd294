// Package capacity implements the atomic per-window counter service
// (spec §4.6). Spec §9 Design Notes explicitly forbids the
// "read, compare, then increment in two shared-store calls" pattern;
// every implementation here performs check-and-increment as one
// atomic operation.
package capacity

import (
	"context"
	"time"
)

// Window is a counter reset period (spec §4.6).
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the wall-clock span of a Window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Result is the outcome of a CheckAndIncrement call (spec §4.6).
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Counter is the atomic counter service contract (spec §4.6):
// check_and_increment(key, window) -> (allowed, remaining, reset_time).
// Both inbound client limits and outbound buyer limits are expressed
// as Counter keys (spec §4.6, §6).
type Counter interface {
	// CheckAndIncrement atomically increments the counter for key
	// within window if doing so would not exceed limit, returning
	// whether the increment was allowed.
	CheckAndIncrement(ctx context.Context, key string, window Window, limit int) (Result, error)

	// Decrement atomically reduces the counter for key within window
	// by one, used to compensate a pre-incremented reservation after
	// a permanently-failed dispatch (spec §4.4 Atomicity, §4.5).
	Decrement(ctx context.Context, key string, window Window) error

	// Peek reads the current count for key within window without
	// mutating it.
	Peek(ctx context.Context, key string, window Window) (int, error)
}

// PlatformDailyKey builds the outbound daily counter key (spec §6):
// "platform:daily:{code}:{yyyy-mm-dd}".
func PlatformDailyKey(platformCode string, day time.Time) string {
	return "platform:daily:" + platformCode + ":" + day.UTC().Format("2006-01-02")
}

// PlatformWindowKey builds an outbound hour/minute counter key,
// analogous to PlatformDailyKey (spec §6).
func PlatformWindowKey(platformCode string, w Window, at time.Time) string {
	idx := epochWindowIndex(w, at)
	return "platform:" + string(w) + ":" + platformCode + ":" + idx
}

// InboundRateLimitKey builds the inbound client rate-limit key (spec
// §6): "ratelimit:{tenant}:{endpoint}:{epoch_window_index}".
func InboundRateLimitKey(tenant, endpoint string, w Window, at time.Time) string {
	return "ratelimit:" + tenant + ":" + endpoint + ":" + epochWindowIndex(w, at)
}

func epochWindowIndex(w Window, at time.Time) string {
	unix := at.UTC().Unix()
	windowSeconds := int64(w.Duration().Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	idx := unix / windowSeconds
	return formatInt(idx)
}

func formatInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
