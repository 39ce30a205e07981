package proxy

import (
	"bufio"
	"bytes"
	"context"
	"net/http"

	"gatewaycred/internal/constants"
	"gatewaycred/internal/errors"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Sink receives frames from an active stream. Flush is called after each
// frame so the runtime (gin.Context.Writer) pushes bytes immediately.
type Sink interface {
	WriteFrame(data []byte) error
	Flush()
}

var sseDataPrefix = []byte("data: ")

// streamResources is the three-level resource group -- upstream response,
// stream context, HTTP client -- torn down in that order (close the response
// body, cancel the stream context, close the client's idle connections) on
// every exit path (success, error, client disconnect, mid-stream exception)
// by the single deferred teardown below.
type streamResources struct {
	resp   *http.Response
	cancel context.CancelFunc
	client *Client
}

func (r *streamResources) teardown() {
	if r.resp != nil {
		if err := r.resp.Body.Close(); err != nil {
			log.WithError(err).Debug("upstream proxy: error closing stream body")
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
}

// Stream runs the streaming lifecycle: the same retry/rotate/refresh/ban
// policy as Generate decides which attempt finally succeeds, then every SSE
// frame of that attempt's body is unwrapped and forwarded to sink until the
// upstream closes the connection or ctx is canceled.
func (e *Engine) Stream(ctx context.Context, model string, request []byte, sink Sink) *errors.APIError {
	result, _, apiErr := e.dispatch(ctx, ActionStreamGenerate, model, request)
	if apiErr != nil {
		return apiErr
	}

	streamCtx, cancel := context.WithCancel(ctx)
	res := &streamResources{resp: result.resp, cancel: cancel, client: e.client}
	defer res.teardown()

	scanner := bufio.NewScanner(result.resp.Body)
	scanner.Buffer(make([]byte, constants.SSEScannerInitialBufferSize), constants.SSEScannerMaxBufferSize)

	recordedSuccess := false
	for scanner.Scan() {
		if streamCtx.Err() != nil {
			return nil
		}

		data, ok := sseDataLine(scanner.Bytes())
		if !ok {
			continue // ignore blank lines, comments, event: lines
		}
		if !gjson.ValidBytes(data) {
			continue // drop a frame that is not valid JSON; the stream goes on
		}

		if !recordedSuccess {
			e.pool.Record(result.credID, true, http.StatusOK)
			recordedSuccess = true
		}

		frame := UnwrapEnvelope(data)
		if err := sink.WriteFrame(frame); err != nil {
			// Client disconnected mid-stream: the success already recorded
			// for frame 1 stands; teardown still runs via defer.
			return nil
		}
		sink.Flush()
	}

	if err := scanner.Err(); err != nil {
		return errors.New(http.StatusBadGateway, "transient_upstream", "stream read error: "+err.Error())
	}
	return nil
}

func sseDataLine(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, sseDataPrefix) {
		return nil, false
	}
	return bytes.TrimPrefix(line, sseDataPrefix), true
}
