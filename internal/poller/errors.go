package poller

import "errors"

// Attempt failure kinds. They never escape [Caller.Call]; they classify
// failed attempts for logging and metrics.
var (
	// ErrTransport covers network errors and timeouts.
	ErrTransport = errors.New("transport error")

	// ErrHTTPStatus marks a response with a non-2xx status code.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrInvalidResponse marks a body that is empty, not a JSON object,
	// lacks an integer code, or carries a negative code.
	ErrInvalidResponse = errors.New("invalid response")
)
