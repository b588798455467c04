package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"rpcguard/internal/guard"
	"rpcguard/internal/models"
	"rpcguard/internal/ratelimit"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGuardService implements guard.ServiceInterface for testing
type MockGuardService struct {
	mock.Mock
}

func (m *MockGuardService) Call(ctx context.Context, req *models.RPCRequest) (*models.RPCResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.RPCResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) Headers(req models.RPCRequest) http.Header {
	args := m.Called(req)
	h, _ := args.Get(0).(http.Header)
	return h
}

func (m *MockGuardService) AddWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*models.AccessListResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) RemoveWhitelist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*models.AccessListResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) AddBlacklist(ctx context.Context, id string, req *models.BlacklistRequest) (*models.AccessListResponse, error) {
	args := m.Called(ctx, id, req)
	resp, _ := args.Get(0).(*models.AccessListResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) RemoveBlacklist(ctx context.Context, id string) (*models.AccessListResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*models.AccessListResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) BucketStatus(ctx context.Context, id string) (*models.BucketStatusResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*models.BucketStatusResponse)
	return resp, args.Error(1)
}

func (m *MockGuardService) Metrics(ctx context.Context) *models.MetricsResponse {
	args := m.Called(ctx)
	return args.Get(0).(*models.MetricsResponse)
}

func (m *MockGuardService) Events(ctx context.Context, limit int) *models.EventsResponse {
	args := m.Called(ctx, limit)
	return args.Get(0).(*models.EventsResponse)
}

func (m *MockGuardService) Health(ctx context.Context) *models.HealthCheckResponse {
	args := m.Called(ctx)
	return args.Get(0).(*models.HealthCheckResponse)
}

var _ guard.ServiceInterface = (*MockGuardService)(nil)

func postRPC(t *testing.T, h *Handlers, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	h.Call(recorder, req)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var errorResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &errorResp))
	return errorResp
}

func TestNewHandlers(t *testing.T) {
	mockService := &MockGuardService{}

	handlers := NewHandlers(mockService, models.SecurityConfig{})
	defer handlers.Close()
	assert.Equal(t, mockService, handlers.service)
	assert.Nil(t, handlers.adminThrottle)

	throttled := NewHandlers(mockService, models.SecurityConfig{AdminRequestsPerMinute: 60, AdminBurst: 5})
	defer throttled.Close()
	assert.NotNil(t, throttled.adminThrottle)
}

func TestHandlers_Call_Success(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, models.SecurityConfig{})

	rateHeaders := http.Header{}
	rateHeaders.Set("X-RateLimit-Limit", "10")
	rateHeaders.Set("X-RateLimit-Remaining", "9")

	matchReq := mock.MatchedBy(func(req *models.RPCRequest) bool {
		return req.UserID == "alice" &&
			req.ClientIP == "203.0.113.7" &&
			req.Method == "eth_blockNumber" &&
			string(req.Params) == `[1,2]`
	})
	mockService.On("Call", mock.Anything, matchReq).
		Return(&models.RPCResponse{Result: json.RawMessage(`"0x10"`)}, nil)
	mockService.On("Headers", mock.AnythingOfType("models.RPCRequest")).Return(rateHeaders)

	recorder := postRPC(t, handlers,
		`{"user_id":"alice","method":"eth_blockNumber","params":[1,2]}`,
		map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "10", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", recorder.Header().Get("X-RateLimit-Remaining"))

	var response models.RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.JSONEq(t, `"0x10"`, string(response.Result))

	mockService.AssertExpectations(t)
}

func TestHandlers_Call_UpstreamRPCError(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, models.SecurityConfig{})

	mockService.On("Call", mock.Anything, mock.Anything).Return(&models.RPCResponse{
		Error: &models.RPCErrorObject{Code: -32000, Message: "execution reverted", Data: json.RawMessage(`"0xdead"`)},
	}, nil)
	mockService.On("Headers", mock.AnythingOfType("models.RPCRequest")).Return(http.Header{})

	recorder := postRPC(t, handlers, `{"user_id":"alice","method":"eth_call"}`, nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t,
		`{"error":{"code":-32000,"message":"execution reverted","data":"0xdead"}}`,
		recorder.Body.String())

	mockService.AssertExpectations(t)
}

func TestHandlers_Call_InvalidJSON(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, models.SecurityConfig{})

	recorder := postRPC(t, handlers, `{"method":`, nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	errorResp := decodeError(t, recorder)
	assert.Equal(t, "error", errorResp.Error)
	assert.Equal(t, models.ErrorCodeBadRequest, errorResp.Code)
	mockService.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

func TestHandlers_Call_ServiceErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		retryAfter     string
	}{
		{
			name: "rate limited",
			err: guard.NewRateLimitedError(&ratelimit.RateLimitExceededError{
				Identifier: "alice",
				Kind:       ratelimit.KindUser,
				RetryAfter: 1500 * time.Millisecond,
			}),
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   models.ErrorCodeRateLimitExceeded,
			retryAfter:     "2",
		},
		{
			name: "blacklisted",
			err: guard.NewBlacklistedError(&ratelimit.BlacklistedError{
				Identifier: "mallory",
				Remaining:  90 * time.Second,
			}),
			expectedStatus: http.StatusForbidden,
			expectedCode:   models.ErrorCodeBlacklisted,
			retryAfter:     "90",
		},
		{
			name:           "invalid request",
			err:            guard.NewInvalidRequestError("invalid request", errors.New("method is required")),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   models.ErrorCodeInvalidRequest,
		},
		{
			name:           "upstream failure",
			err:            guard.NewUpstreamError(errors.New("connection refused")),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   models.ErrorCodeUpstreamError,
		},
		{
			name:           "unknown error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   models.ErrorCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGuardService{}
			handlers := NewHandlers(mockService, models.SecurityConfig{})

			mockService.On("Call", mock.Anything, mock.Anything).Return(nil, tt.err)
			mockService.On("Headers", mock.Anything).Return(http.Header{})

			recorder := postRPC(t, handlers, `{"method":"eth_call"}`, nil)

			assert.Equal(t, tt.expectedStatus, recorder.Code)
			errorResp := decodeError(t, recorder)
			assert.Equal(t, tt.expectedCode, errorResp.Code)
			assert.Equal(t, tt.retryAfter, recorder.Header().Get("Retry-After"))
			if tt.retryAfter != "" {
				assert.NotZero(t, errorResp.RetryAfter)
			} else {
				assert.Zero(t, errorResp.RetryAfter)
			}
			assert.NotContains(t, recorder.Body.String(), "boom")
		})
	}
}

func TestHandlers_Call_InvalidRequestDetails(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, models.SecurityConfig{})

	mockService.On("Call", mock.Anything, mock.Anything).
		Return(nil, guard.NewInvalidRequestError("invalid request", errors.New("method is required")))
	mockService.On("Headers", mock.Anything).Return(http.Header{})

	recorder := postRPC(t, handlers, `{"method":""}`, nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	errorResp := decodeError(t, recorder)
	assert.Equal(t, "method is required", errorResp.Details["reason"])
}

func TestHandlers_Call_ClientIPFromRemoteAddr(t *testing.T) {
	mockService := &MockGuardService{}
	handlers := NewHandlers(mockService, models.SecurityConfig{})

	mockService.On("Call", mock.Anything, mock.MatchedBy(func(req *models.RPCRequest) bool {
		return req.ClientIP == "192.0.2.1" && req.UserID == ""
	})).Return(&models.RPCResponse{Result: json.RawMessage(`null`)}, nil)
	mockService.On("Headers", mock.Anything).Return(http.Header{})

	// httptest.NewRequest uses 192.0.2.1:1234 as the remote address.
	recorder := postRPC(t, handlers, `{"method":"net_version"}`, nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	mockService.AssertExpectations(t)
}

func TestHandlers_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		expectedStatus int
	}{
		{name: "healthy", status: models.StatusHealthy, expectedStatus: http.StatusOK},
		{name: "degraded", status: models.StatusDegraded, expectedStatus: http.StatusOK},
		{name: "unhealthy", status: models.StatusUnhealthy, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGuardService{}
			handlers := NewHandlers(mockService, models.SecurityConfig{})
			mockService.On("Health", mock.Anything).Return(models.NewHealthCheckResponse(tt.status))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			recorder := httptest.NewRecorder()
			handlers.HealthCheck(recorder, req)

			assert.Equal(t, tt.expectedStatus, recorder.Code)

			var response models.HealthCheckResponse
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
			assert.Equal(t, tt.status, response.Status)
			assert.Equal(t, models.StatusHealthy, response.Components["api"].Status)
		})
	}
}
