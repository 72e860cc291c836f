package shared

import "errors"

// Sentinels are wrapped with %w at the failure site. Callers branch with [errors.Is].
var (
	ErrNotImplemented = errors.New("not implemented")

	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrTimeout            = errors.New("operation timed out")

	// Catalog calls. Transient failures are retried with backoff, permanent ones are not.
	ErrTransientAPI       = errors.New("transient catalog failure")
	ErrPermanentAPI       = errors.New("permanent catalog failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrPlaylistNotFound   = errors.New("playlist not found")
	ErrEntityNotFound     = errors.New("entity not found")

	// Match cache. ErrCacheCorrupt marks a row that could not be decoded and is treated as a miss.
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheCorrupt = errors.New("match cache unreadable")

	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)
