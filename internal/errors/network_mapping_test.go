package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapNetworkErrorClassifiesKnownCases(t *testing.T) {
	require.Equal(t, http.StatusGatewayTimeout, MapNetworkError(errors.New("dial: i/o timeout")).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MapNetworkError(errors.New("connection refused")).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MapNetworkError(errors.New("read: EOF")).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MapNetworkError(errors.New("no such host")).HTTPStatus)
	require.Equal(t, http.StatusRequestTimeout, MapNetworkError(errors.New("context canceled")).HTTPStatus)
	require.Equal(t, http.StatusBadGateway, MapNetworkError(errors.New("something else")).HTTPStatus)
}

func TestIsRetryableNetworkError(t *testing.T) {
	require.True(t, IsRetryableNetworkError(errors.New("connection refused")))
	require.False(t, IsRetryableNetworkError(errors.New("context canceled")))
	require.False(t, IsRetryableNetworkError(nil))
}

func TestAPIErrorToJSON(t *testing.T) {
	err := New(http.StatusTooManyRequests, "rate_limit", "slow down").WithCode(429)
	data, jsonErr := err.ToJSON()
	require.NoError(t, jsonErr)
	require.JSONEq(t, `{"error":{"message":"slow down","type":"rate_limit","code":429}}`, string(data))
}
