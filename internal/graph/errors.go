package graph

import "fmt"

// ClientError is the terminal failure for a query: every allowed attempt was
// used, or the failure was one a retry cannot fix. The last underlying cause
// is wrapped.
type ClientError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("query to %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// RateLimitError reports an HTTP 429 from the endpoint. It is surfaced
// immediately, never retried inline, and does not count as a failed query;
// the caller decides whether to back off and reissue.
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded on %s", e.Endpoint)
}

// terminalError marks failures a retry will not change: GraphQL-level errors
// and responses that do not decode. Transport failures stay retryable.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string {
	return e.err.Error()
}

func (e *terminalError) Unwrap() error {
	return e.err
}
