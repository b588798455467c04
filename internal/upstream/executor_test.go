package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"rpcguard/internal/models"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutor_Success(t *testing.T) {
	var got rpcEnvelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "rpcguard/"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":"0x10"}`))
	}))
	defer server.Close()

	exec, err := NewHTTPExecutor(models.UpstreamConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
	}, server.Client())
	require.NoError(t, err)

	resp, err := exec.Execute(context.Background(), models.RPCRequest{
		Method: "eth_blockNumber",
		Params: json.RawMessage(`[]`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(resp.Result))

	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, "eth_blockNumber", got.Method)
	assert.JSONEq(t, `[]`, string(got.Params))
	assert.NotEmpty(t, got.ID)
}

func TestHTTPExecutor_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer server.Close()

	exec, err := NewHTTPExecutor(models.UpstreamConfig{URL: server.URL}, server.Client())
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), models.RPCRequest{Method: "nope"})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "method not found", rpcErr.Message)
	assert.False(t, errors.Is(err, ErrUpstream))
}

func TestRPCError_Response(t *testing.T) {
	rpcErr := &RPCError{Code: -32000, Message: "execution reverted", Data: json.RawMessage(`"0xdead"`)}

	resp := rpcErr.Response()
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, "execution reverted", resp.Error.Message)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":-32000,"message":"execution reverted","data":"0xdead"}}`, string(body))
}

func TestHTTPExecutor_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	exec, err := NewHTTPExecutor(models.UpstreamConfig{URL: server.URL}, server.Client())
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), models.RPCRequest{Method: "eth_chainId"})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPExecutor_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	exec, err := NewHTTPExecutor(models.UpstreamConfig{URL: url}, nil)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), models.RPCRequest{Method: "eth_chainId"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNewHTTPExecutor_RequiresURL(t *testing.T) {
	_, err := NewHTTPExecutor(models.UpstreamConfig{}, nil)
	assert.Error(t, err)
}

func TestEchoExecutor(t *testing.T) {
	resp, err := EchoExecutor{}.Execute(context.Background(), models.RPCRequest{
		Method: "ping",
		Params: json.RawMessage(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"ping","params":{"a":1}}`, string(resp.Result))

	resp, err = EchoExecutor{}.Execute(context.Background(), models.RPCRequest{Method: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"ping","params":null}`, string(resp.Result))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EchoExecutor{}.Execute(ctx, models.RPCRequest{Method: "ping"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	exec, err := New(models.UpstreamConfig{Mode: models.UpstreamModeEcho})
	require.NoError(t, err)
	assert.IsType(t, EchoExecutor{}, exec)

	exec, err = New(models.UpstreamConfig{Mode: models.UpstreamModeHTTP, URL: "http://localhost:8545"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPExecutor{}, exec)

	_, err = New(models.UpstreamConfig{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}
