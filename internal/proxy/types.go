package proxy

import (
	"context"

	"gatewaycred/internal/credential"
)

// CredentialPool is the subset of credential.Pool the engine depends on,
// so tests can substitute a fake without a real on-disk pool.
type CredentialPool interface {
	Borrow() (credential.Borrowed, error)
	Rotate()
	RefreshCurrent(ctx context.Context) bool
	Disable(id string) error
	Record(id string, ok bool, statusCode int)
}

// RequestContext describes the per-call state of one dispatch: chosen model,
// request shape, assembled payload, and whichever credential is presently
// bound to the in-flight attempt. The engine's dispatch loop does not build
// one; it keeps the same state in local variables.
type RequestContext struct {
	Model      string
	Streaming  bool
	Payload    []byte
	Credential string
}
