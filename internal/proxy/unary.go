package proxy

import (
	"context"
	"io"
	"net/http"

	"gatewaycred/internal/errors"
)

const unaryBodyLimit = 32 * 1024 * 1024

// Generate runs the non-streaming lifecycle: the entire upstream body is
// read before any decision is made, then the `response` envelope (if any)
// is unwrapped before the bytes are handed to the caller.
func (e *Engine) Generate(ctx context.Context, model string, request []byte) ([]byte, *errors.APIError) {
	result, _, apiErr := e.dispatch(ctx, ActionGenerate, model, request)
	if apiErr != nil {
		return nil, apiErr
	}
	defer result.resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(result.resp.Body, unaryBodyLimit))
	if err != nil {
		return nil, errors.New(http.StatusBadGateway, "transient_upstream", "failed reading upstream response: "+err.Error())
	}
	e.pool.Record(result.credID, true, http.StatusOK)
	return UnwrapEnvelope(body), nil
}
