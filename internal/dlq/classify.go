package dlq

import (
	"errors"
	"strings"
)

// ErrCycleTooSoon is the domain condition for a cycle attempted before the
// asset's minimum interval has elapsed. It gets the same backoff treatment as
// generic transient errors but is tracked under its own label.
var ErrCycleTooSoon = errors.New("cycle too soon")

// transientPatterns match network-shaped failures worth retrying. Matching is
// case-insensitive substring search over the error text.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"econnreset",
	"broken pipe",
	"unexpected eof",
	"fetch failed",
	"rate limited",
	"429",
	"too many requests",
	"temporarily unavailable",
	"service unavailable",
	"no such host",
}

// cycleTooSoonPatterns match the "too soon to retry" domain condition when it
// arrives as text from the executor rather than as a wrapped sentinel.
var cycleTooSoonPatterns = []string{
	"cycle too soon",
	"too soon since last cycle",
	"min cycle interval",
}

// IsTransient reports whether the error looks like a retriable network or
// provider failure. Cycle-too-soon errors are also transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsCycleTooSoon(err) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// IsCycleTooSoon reports whether the error is the domain "cycle too soon"
// condition, either as the wrapped sentinel or by text.
func IsCycleTooSoon(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCycleTooSoon) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, p := range cycleTooSoonPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
