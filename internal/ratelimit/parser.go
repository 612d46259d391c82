// Package ratelimit provides rate limit detection and Retry-After parsing
// for provider responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusTooManyRequests is the HTTP status providers use to signal throttling.
const StatusTooManyRequests = http.StatusTooManyRequests

// messagePatterns are matched case-insensitively against error text.
var messagePatterns = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"429",
}

// IsRateLimitStatus reports whether an HTTP status code signals throttling.
func IsRateLimitStatus(code int) bool {
	return code == StatusTooManyRequests
}

// IsRateLimitMessage reports whether an error message describes throttling.
func IsRateLimitMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, pattern := range messagePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// ParseRetryAfter interprets a Retry-After header value, which is either a
// number of seconds or an HTTP date. Returns (0, false) if the value is
// empty, malformed or already in the past.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := at.Sub(now)
	if wait <= 0 {
		return 0, false
	}
	return wait, true
}
