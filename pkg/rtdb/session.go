package rtdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WriteSizeLimit names a server-side cap on the payload size of a write.
type WriteSizeLimit string

// Write size limit tiers.
const (
	WriteSizeTiny      WriteSizeLimit = "tiny"
	WriteSizeSmall     WriteSizeLimit = "small"
	WriteSizeMedium    WriteSizeLimit = "medium"
	WriteSizeLarge     WriteSizeLimit = "large"
	WriteSizeUnlimited WriteSizeLimit = "unlimited"
)

const (
	// DefaultTimeout is the request timeout sent when none is configured.
	DefaultTimeout = 15 * time.Second
	// MaxTimeout is the largest timeout the server accepts.
	MaxTimeout = 15 * time.Minute
	// DefaultWriteSizeLimit matches the server's own default.
	DefaultWriteSizeLimit = WriteSizeLarge
)

// Valid reports whether l is one of the known tiers.
func (l WriteSizeLimit) Valid() bool {
	switch l {
	case WriteSizeTiny, WriteSizeSmall, WriteSizeMedium, WriteSizeLarge, WriteSizeUnlimited:
		return true
	}
	return false
}

// ParseWriteSizeLimit parses a tier name, ignoring case.
func ParseWriteSizeLimit(s string) (WriteSizeLimit, error) {
	l := WriteSizeLimit(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("rtdb: unknown write size limit %q", s)
	}
	return l, nil
}

// Session is the mutable per-client state every request URL is built from.
type Session struct {
	// AuthToken is sent as the "auth" parameter; empty means unauthenticated.
	AuthToken string
	// Timeout is the server-side request timeout.
	Timeout time.Duration
	// WriteSizeLimit caps the payload size of writes.
	WriteSizeLimit WriteSizeLimit
}

func defaultSession() Session {
	return Session{
		Timeout:        DefaultTimeout,
		WriteSizeLimit: DefaultWriteSizeLimit,
	}
}

// normalize clamps the timeout into (0, MaxTimeout] and replaces unknown tiers.
func (s Session) normalize() Session {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Timeout > MaxTimeout {
		s.Timeout = MaxTimeout
	}
	if !s.WriteSizeLimit.Valid() {
		s.WriteSizeLimit = DefaultWriteSizeLimit
	}
	return s
}

// formatTimeout renders d in the largest unit that represents it exactly:
// "3min", "10s" or "250ms". Sub-millisecond remainders are truncated.
func formatTimeout(d time.Duration) string {
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	switch {
	case ms%60000 == 0:
		return strconv.FormatInt(ms/60000, 10) + "min"
	case ms%1000 == 0:
		return strconv.FormatInt(ms/1000, 10) + "s"
	default:
		return strconv.FormatInt(ms, 10) + "ms"
	}
}
