package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EmptyPayloadMarker is the description fragment Telegram returns when an
// uploaded file has no content.
const EmptyPayloadMarker = "file must be non-empty"

// DefaultRetryAfter is used when a 429 response carries no retry delay.
const DefaultRetryAfter = 5 * time.Second

// APIError is a non-OK response from the Bot API.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	// RetryAfter is the server-suggested wait in seconds, 0 when absent.
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (HTTP %d): %s", e.Method, e.StatusCode, e.Description)
}

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeRateLimited
	OutcomeEmptyPayload
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeEmptyPayload:
		return "empty_payload"
	default:
		return "failed"
	}
}

// Classify maps the error of a delivery attempt to its outcome. For
// rate-limited attempts it also returns how long to wait before retrying,
// falling back to defaultWait when the server suggested nothing.
func Classify(err error, defaultWait time.Duration) (Outcome, time.Duration) {
	if err == nil {
		return OutcomeSent, 0
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return OutcomeFailed, 0
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		wait := defaultWait
		if apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		return OutcomeRateLimited, wait
	case apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Description), EmptyPayloadMarker):
		return OutcomeEmptyPayload, 0
	default:
		return OutcomeFailed, 0
	}
}
