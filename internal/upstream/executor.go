// Package upstream forwards admitted RPC calls to the backend. HTTPExecutor
// speaks JSON-RPC 2.0 over HTTP; EchoExecutor answers locally and is meant for
// development and tests.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"rpcguard/internal/models"
	"rpcguard/internal/ratelimit"
	"rpcguard/internal/version"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "rpcguard/upstream"

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 10 << 20
)

// ErrUpstream wraps transport failures and malformed upstream responses.
var ErrUpstream = errors.New("upstream request failed")

// RPCError is a JSON-RPC error object returned by the upstream.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response carries the error object to the caller unchanged.
func (e *RPCError) Response() *models.RPCResponse {
	return &models.RPCResponse{Error: &models.RPCErrorObject{
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// HTTPExecutor posts each call as a JSON-RPC 2.0 request.
type HTTPExecutor struct {
	url     string
	headers map[string]string
	client  *http.Client
	tracer  trace.Tracer
}

// NewHTTPExecutor creates an executor for cfg.URL. A nil client means a
// client with cfg.Timeout (zero is no timeout).
func NewHTTPExecutor(cfg models.UpstreamConfig, client *http.Client) (*HTTPExecutor, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPExecutor{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Execute sends req upstream. A JSON-RPC error object is returned as
// *RPCError; transport and decoding failures wrap ErrUpstream.
func (e *HTTPExecutor) Execute(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	ctx, span := e.tracer.Start(ctx, "upstream.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "jsonrpc"), attribute.String("rpc.method", req.Method)),
	)
	defer span.End()

	resp, err := e.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (e *HTTPExecutor) do(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	body, err := json.Marshal(rpcEnvelope{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  req.Method,
		Params:  req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrUpstream, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.GetInfo().UserAgent())
	for k, v := range e.headers {
		httpReq.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUpstream, err)
	}

	var reply rpcReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		if httpResp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, httpResp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode response: %w", ErrUpstream, err)
	}
	if reply.Error != nil {
		return nil, reply.Error
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, httpResp.StatusCode)
	}
	return &models.RPCResponse{Result: reply.Result}, nil
}

// EchoExecutor returns the method and params it was given.
type EchoExecutor struct{}

func (EchoExecutor) Execute(ctx context.Context, req models.RPCRequest) (*models.RPCResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("null")
	}
	result, err := json.Marshal(struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}{req.Method, params})
	if err != nil {
		return nil, err
	}
	return &models.RPCResponse{Result: result}, nil
}

// New creates the executor selected by cfg.Mode.
func New(cfg models.UpstreamConfig) (ratelimit.Executor, error) {
	switch cfg.Mode {
	case models.UpstreamModeHTTP:
		exec, err := NewHTTPExecutor(cfg, nil)
		if err != nil {
			return nil, err
		}
		return exec, nil
	case models.UpstreamModeEcho, "":
		return EchoExecutor{}, nil
	default:
		return nil, fmt.Errorf("unsupported upstream mode: %s", cfg.Mode)
	}
}
