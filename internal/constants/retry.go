package constants

import "time"

// Retry policy defaults, shared by config.Default() and the proxy engine's
// backoff computation.
const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 1 * time.Second
	RetryBackoffFactor   = 2.0
)
