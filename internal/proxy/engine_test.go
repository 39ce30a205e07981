package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gatewaycred/internal/config"
	"gatewaycred/internal/credential"

	"github.com/stretchr/testify/require"
)

// fakePool is a minimal in-memory stand-in for credential.Pool, letting
// tests drive rotation/refresh/disable without touching disk.
type fakePool struct {
	mu sync.Mutex

	ids      []string
	cursor   int
	disabled map[string]bool
	tokens   map[string]string

	refreshCalls  map[string]int
	refreshResult bool

	records []recordCall
}

type recordCall struct {
	id     string
	ok     bool
	status int
}

func newFakePool(ids ...string) *fakePool {
	p := &fakePool{
		ids:          ids,
		disabled:     make(map[string]bool),
		tokens:       make(map[string]string),
		refreshCalls: make(map[string]int),
	}
	for _, id := range ids {
		p.tokens[id] = "token-" + id
	}
	return p
}

func (p *fakePool) Borrow() (credential.Borrowed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.ids)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		id := p.ids[idx]
		if !p.disabled[id] {
			return credential.Borrowed{ID: id, AccessToken: p.tokens[id], ProjectID: "proj-" + id}, nil
		}
	}
	return credential.Borrowed{}, credential.ErrPoolExhausted
}

func (p *fakePool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = (p.cursor + 1) % len(p.ids)
}

func (p *fakePool) RefreshCurrent(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.ids[p.cursor]
	p.refreshCalls[id]++
	if p.refreshResult {
		p.tokens[id] = "refreshed-" + id
	}
	return p.refreshResult
}

func (p *fakePool) Disable(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[id] = true
	return nil
}

func (p *fakePool) Record(id string, ok bool, statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, recordCall{id: id, ok: ok, status: statusCode})
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.BaseEndpoint = baseURL
	cfg.Retry429.Enabled = true
	cfg.Retry429.MaxRetries = 3
	cfg.Retry429.IntervalSec = 0.001
	cfg.AutoBan.Enabled = true
	cfg.AutoBan.ErrorCodes = []int{400, 401, 403, 404}
	return cfg
}

// S1: a 429 rotates to the next credential and the retried call succeeds.
func TestEngineGenerate429RotatesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == "Bearer token-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"response":{"ok":true}}`)
	}))
	defer srv.Close()

	pool := newFakePool("a", "b")
	engine := NewEngine(testConfig(srv.URL), pool)

	out, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.Nil(t, apiErr)
	require.JSONEq(t, `{"ok":true}`, string(out))

	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.Contains(t, pool.records, recordCall{id: "a", ok: false, status: http.StatusTooManyRequests})
	require.Contains(t, pool.records, recordCall{id: "b", ok: true, status: http.StatusOK})
}

// S2: a 401 triggers a single refresh attempt on the same credential, which
// then succeeds without rotating away.
func TestEngineGenerate401RefreshesThenSucceeds(t *testing.T) {
	first := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "Bearer refreshed-a", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"response":{"ok":true}}`)
	}))
	defer srv.Close()

	pool := newFakePool("a")
	pool.refreshResult = true
	engine := NewEngine(testConfig(srv.URL), pool)

	out, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.Nil(t, apiErr)
	require.JSONEq(t, `{"ok":true}`, string(out))
	require.Equal(t, 1, pool.refreshCalls["a"])
}

// S3: a 403 with no successful refresh disables the credential and cascades
// to the next one in the pool.
func TestEngineGenerate403DisablesAndCascades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token-a" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"response":{"ok":true}}`)
	}))
	defer srv.Close()

	pool := newFakePool("a", "b")
	engine := NewEngine(testConfig(srv.URL), pool)

	out, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.Nil(t, apiErr)
	require.JSONEq(t, `{"ok":true}`, string(out))

	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.True(t, pool.disabled["a"])
	require.False(t, pool.disabled["b"])
}

// S4: every credential is banned; the engine surfaces the last known
// upstream status code rather than a generic 503.
func TestEngineGenerateExhaustionSurfacesLastStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	pool := newFakePool("a")
	engine := NewEngine(testConfig(srv.URL), pool)

	_, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
}

// A 5xx retries against the same credential without rotating.
func TestEngineGenerate5xxRetriesSameCredential(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"response":{"ok":true}}`)
	}))
	defer srv.Close()

	pool := newFakePool("a")
	engine := NewEngine(testConfig(srv.URL), pool)

	out, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.Nil(t, apiErr)
	require.JSONEq(t, `{"ok":true}`, string(out))
	require.Equal(t, 2, attempts)
}

// Once 5xx retries are exhausted, the real upstream status code is
// surfaced rather than a generic 502.
func TestEngineGenerate5xxExhaustionSurfacesRealStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pool := newFakePool("a")
	engine := NewEngine(testConfig(srv.URL), pool)

	_, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
}

func TestEngineGenerateNoActiveCredential(t *testing.T) {
	pool := newFakePool()
	engine := NewEngine(testConfig("http://unused.invalid"), pool)

	_, apiErr := engine.Generate(context.Background(), "gemini-pro", []byte(`{}`))
	require.NotNil(t, apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
}
