package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"rpcguard/internal/models"
	"strconv"

	"github.com/gorilla/mux"
)

const defaultEventsLimit = 100

// GetBucket handles bucket status requests
// GET /api/v1/admin/buckets/{id}
func (h *Handlers) GetBucket(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.BucketStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetMetrics handles limiter metrics requests
// GET /api/v1/admin/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.service.Metrics(r.Context()))
}

// GetEvents handles event history requests
// GET /api/v1/admin/events?limit=N
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	h.writeJSONResponse(w, http.StatusOK, h.service.Events(r.Context(), limit))
}

// AddWhitelist handles whitelist additions
// PUT /api/v1/admin/whitelist/{id}
func (h *Handlers) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.AddWhitelist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	slog.Info("Whitelist entry added", "event", "security_audit", "identifier", response.Identifier, "client_ip", clientIP(r))
	h.writeJSONResponse(w, http.StatusOK, response)
}

// RemoveWhitelist handles whitelist removals
// DELETE /api/v1/admin/whitelist/{id}
func (h *Handlers) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.RemoveWhitelist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	slog.Info("Whitelist entry removed", "event", "security_audit", "identifier", response.Identifier, "client_ip", clientIP(r))
	h.writeJSONResponse(w, http.StatusOK, response)
}

// AddBlacklist handles blacklist additions. The body is optional.
// PUT /api/v1/admin/blacklist/{id}
func (h *Handlers) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req models.BlacklistRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	response, err := h.service.AddBlacklist(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	slog.Info("Blacklist entry added",
		"event", "security_audit",
		"identifier", response.Identifier,
		"expires_at", response.ExpiresAt,
		"client_ip", clientIP(r))
	h.writeJSONResponse(w, http.StatusOK, response)
}

// RemoveBlacklist handles blacklist removals
// DELETE /api/v1/admin/blacklist/{id}
func (h *Handlers) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.RemoveBlacklist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErrorResponse(w, err)
		return
	}
	slog.Info("Blacklist entry removed", "event", "security_audit", "identifier", response.Identifier, "client_ip", clientIP(r))
	h.writeJSONResponse(w, http.StatusOK, response)
}
