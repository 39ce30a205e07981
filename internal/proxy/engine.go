package proxy

import (
	"context"
	"io"
	"net/http"
	"time"

	"gatewaycred/internal/config"
	"gatewaycred/internal/credential"
	"gatewaycred/internal/errors"

	log "github.com/sirupsen/logrus"
)

const errorBodyLimit = 64 * 1024

// Engine owns request assembly and the status-driven retry/rotate/refresh/ban
// state machine. It borrows credentials without taking ownership of them.
type Engine struct {
	cfg    *config.Config
	pool   CredentialPool
	client *Client
}

func NewEngine(cfg *config.Config, pool CredentialPool) *Engine {
	return &Engine{cfg: cfg, pool: pool, client: NewClient()}
}

// attemptResult is the successful terminal state of the state machine: an
// open, unread HTTP response the caller (unary or streaming) now owns.
type attemptResult struct {
	resp   *http.Response
	credID string
}

// dispatch borrows a credential for the payload's `project` field, then runs
// the retry/rotate/refresh/ban loop described in the upstream proxy engine's
// status table. The payload is built once by the caller and reused verbatim
// across every attempt; only the bearer token and target credential change.
func (e *Engine) dispatch(ctx context.Context, action Action, model string, request []byte) (*attemptResult, string, *errors.APIError) {
	first, err := e.pool.Borrow()
	if err != nil {
		return nil, "", errors.New(http.StatusServiceUnavailable, "exhaustion", "no active credential available")
	}

	payload := BuildPayload(e.cfg, model, first.ProjectID, request)
	result, apiErr := e.run(ctx, action, payload, first)
	return result, first.ProjectID, apiErr
}

func (e *Engine) run(ctx context.Context, action Action, payload []byte, cred credential.Borrowed) (*attemptResult, *errors.APIError) {
	maxRetries := e.cfg.Retry429.MaxRetries
	base := time.Duration(e.cfg.Retry429.IntervalSec * float64(time.Second))

	var attempt429, attempt5xx, attemptBan, attemptOther int
	refreshed := make(map[string]bool)
	lastStatus := 0

	url := BuildURL(e.cfg.BaseEndpoint, action)

	for {
		resp, httpErr := e.client.postJSON(ctx, url, payload, cred.AccessToken)
		if httpErr != nil {
			e.pool.Record(cred.ID, false, 0)
			if attemptOther >= maxRetries {
				return nil, errors.MapNetworkError(httpErr)
			}
			if !sleepCtx(ctx, nextBackoff(base, attemptOther)) {
				return nil, ctxCanceledError()
			}
			attemptOther++
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			// Success is recorded by the caller once the first byte of the
			// body is actually consumed (unary: whole body; streaming: first
			// frame), not here, so a client that cancels before any data
			// arrives never credits the credential.
			return &attemptResult{resp: resp, credID: cred.ID}, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			drainAndClose(resp)
			e.pool.Record(cred.ID, false, http.StatusTooManyRequests)
			lastStatus = http.StatusTooManyRequests
			if !e.cfg.Retry429.Enabled || attempt429 >= maxRetries {
				return nil, errors.New(http.StatusTooManyRequests, "transient_upstream", "upstream rate limit exceeded")
			}
			delay := nextBackoff(base, attempt429)
			attempt429++
			e.pool.Rotate()
			if !sleepCtx(ctx, delay) {
				return nil, ctxCanceledError()
			}
			if cred, httpErr = e.pool.Borrow(); httpErr != nil {
				return nil, exhaustedError(lastStatus)
			}
			continue

		case resp.StatusCode >= 500 && resp.StatusCode <= 599:
			drainAndClose(resp)
			e.pool.Record(cred.ID, false, resp.StatusCode)
			lastStatus = resp.StatusCode
			if attempt5xx >= maxRetries {
				return nil, exhaustedError(lastStatus)
			}
			delay := nextBackoff(base, attempt5xx)
			attempt5xx++
			if !sleepCtx(ctx, delay) {
				return nil, ctxCanceledError()
			}
			continue // same credential, no rotation

		case isAuthRefreshCode(resp.StatusCode) && e.cfg.IsAutoBanStatus(resp.StatusCode):
			body := drainAndClose(resp)
			e.pool.Record(cred.ID, false, resp.StatusCode)
			lastStatus = resp.StatusCode
			if !refreshed[cred.ID] {
				refreshed[cred.ID] = true
				if e.pool.RefreshCurrent(ctx) {
					if !sleepCtx(ctx, credentialErrorDelay) {
						return nil, ctxCanceledError()
					}
					// Pick up the refreshed token; cursor hasn't moved, so
					// this re-borrows the same credential.
					if refreshedCred, err := e.pool.Borrow(); err == nil {
						cred = refreshedCred
					}
					continue // same credential, retry after refresh
				}
			}
			e.pool.Disable(cred.ID)
			e.pool.Rotate()
			if attemptBan >= maxRetries {
				return nil, credentialError(resp.StatusCode, body)
			}
			attemptBan++
			if !sleepCtx(ctx, credentialErrorDelay) {
				return nil, ctxCanceledError()
			}
			if cred, httpErr = e.pool.Borrow(); httpErr != nil {
				return nil, exhaustedError(lastStatus)
			}
			continue

		case e.cfg.IsAutoBanStatus(resp.StatusCode):
			body := drainAndClose(resp)
			e.pool.Record(cred.ID, false, resp.StatusCode)
			lastStatus = resp.StatusCode
			e.pool.Disable(cred.ID)
			e.pool.Rotate()
			if attemptBan >= maxRetries {
				return nil, credentialError(resp.StatusCode, body)
			}
			attemptBan++
			if !sleepCtx(ctx, credentialErrorDelay) {
				return nil, ctxCanceledError()
			}
			if cred, httpErr = e.pool.Borrow(); httpErr != nil {
				return nil, exhaustedError(lastStatus)
			}
			continue

		default:
			body := drainAndClose(resp)
			e.pool.Record(cred.ID, false, resp.StatusCode)
			return nil, credentialError(resp.StatusCode, body)
		}
	}
}

func isAuthRefreshCode(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusBadRequest || status == http.StatusNotFound
}

func drainAndClose(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err := resp.Body.Close(); err != nil {
		log.WithError(err).Debug("upstream proxy: error closing response body")
	}
	return body
}

func credentialError(status int, body []byte) *errors.APIError {
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return errors.New(status, "credential_error", msg)
}

func exhaustedError(lastStatus int) *errors.APIError {
	code := lastStatus
	if code == 0 {
		code = http.StatusServiceUnavailable
	}
	return errors.New(code, "exhaustion", "credential pool exhausted")
}

func ctxCanceledError() *errors.APIError {
	return errors.New(http.StatusGatewayTimeout, "transient_upstream", "request canceled while waiting to retry")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
