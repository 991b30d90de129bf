package quote

import "errors"

// Failure taxonomy shared by all adapters. The resolver matches these with
// errors.Is to decide whether to skip, retry once, or move to the next
// adapter. Adapters wrap them with %w to add upstream context.
var (
	// ErrNotConfigured means the adapter has no credential and was never
	// going to succeed. The resolver skips it without logging an error.
	ErrNotConfigured = errors.New("adapter not configured")

	// ErrNotFound means the upstream has no data for the symbol.
	ErrNotFound = errors.New("symbol not found")

	// ErrRateLimited means the upstream rejected the call with HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnreachable means a transport-level failure (DNS, timeout, refused).
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrUpstream means the upstream answered with a non-2xx status or an
	// undecodable body.
	ErrUpstream = errors.New("upstream error")
)
