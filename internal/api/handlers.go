package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"rpcguard/internal/guard"
	"rpcguard/internal/models"
	"strconv"
	"time"
)

// maxRPCBodyBytes bounds the JSON body of an RPC call.
const maxRPCBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the rpcguard API
type Handlers struct {
	service       guard.ServiceInterface
	adminThrottle *Throttle
}

// NewHandlers creates a new handlers instance. When
// security.AdminRequestsPerMinute is positive the admin routes are throttled
// per client IP.
func NewHandlers(service guard.ServiceInterface, security models.SecurityConfig) *Handlers {
	h := &Handlers{service: service}
	if security.AdminRequestsPerMinute > 0 {
		h.adminThrottle = NewThrottle(security.AdminRequestsPerMinute, security.AdminBurst, 5*time.Minute)
	}
	return h
}

// Close releases the admin throttle.
func (h *Handlers) Close() {
	if h.adminThrottle != nil {
		h.adminThrottle.Close()
	}
}

// rpcCallBody is the wire form of an RPC call.
type rpcCallBody struct {
	UserID string          `json:"user_id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Call handles rate-limited RPC calls
// POST /api/v1/rpc
func (h *Handlers) Call(w http.ResponseWriter, r *http.Request) {
	var body rpcCallBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
	if err := dec.Decode(&body); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	req := &models.RPCRequest{
		UserID:   body.UserID,
		ClientIP: clientIP(r),
		Method:   body.Method,
		Params:   body.Params,
	}

	resp, err := h.service.Call(r.Context(), req)
	// Headers reflect the bucket after this call's token was taken.
	copyHeaders(w.Header(), h.service.Headers(*req))
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := h.service.Health(r.Context())
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; the best we can do is log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceErrorResponse maps a guard.ServiceError to its HTTP status and
// sets Retry-After for rejections that carry a delay. Other errors are
// reported as internal errors without their details.
func (h *Handlers) writeServiceErrorResponse(w http.ResponseWriter, err error) {
	var svcErr *guard.ServiceError
	if !errors.As(err, &svcErr) {
		slog.Error("Unhandled service error", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if svcErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Service error", "code", svcErr.Code, "error", err)
	}

	errorResp := models.NewErrorResponse(svcErr.Message, svcErr.Code)
	if secs := svcErr.RetryAfterSeconds(); secs > 0 {
		errorResp.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	if svcErr.StatusCode == http.StatusBadRequest && svcErr.Err != nil {
		errorResp.Details = map[string]string{"reason": svcErr.Err.Error()}
	}
	h.writeJSONResponse(w, svcErr.StatusCode, errorResp)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
