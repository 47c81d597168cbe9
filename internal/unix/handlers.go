// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package unix

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/internal/channel"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/health"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/keystore"
	"github.com/PirateNetwork/Pirate-Unified-Light-Wallet-sub002/pkg/logging"
)

// ResultResponse is the body of a successful channel call.
type ResultResponse struct {
	Result any `json:"result"`
}

// ErrorResponse is the body of a failed channel call.
type ErrorResponse struct {
	Error *channel.Error `json:"error"`
}

// HealthResponse is the body of the /health routes.
type HealthResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Uptime  string               `json:"uptime,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// HandlerContext holds the dependencies of the socket handlers.
type HandlerContext struct {
	dispatcher    *channel.Dispatcher
	healthChecker *health.Checker
	logger        logging.Logger
	maxBodyBytes  int64
}

// NewHandlerContext creates the handler set. checker may be nil.
func NewHandlerContext(d *channel.Dispatcher, checker *health.Checker, logger logging.Logger, maxBodyBytes int64) *HandlerContext {
	if logger == nil {
		logger = logging.Nop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &HandlerContext{
		dispatcher:    d,
		healthChecker: checker,
		logger:        logger,
		maxBodyBytes:  maxBodyBytes,
	}
}

// ChannelHandler handles POST /api/v1/channel/{method}. The JSON body is
// the argument map; an empty body means no arguments.
func (h *HandlerContext) ChannelHandler(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	var args any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, &channel.Error{
				Code:    keystore.CodeInvalidArgument,
				Message: "request body too large",
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, &channel.Error{
			Code:    keystore.CodeInvalidArgument,
			Message: "malformed request body",
		})
		return
	}

	result, cerr := h.dispatcher.Dispatch(r.Context(), method, args)
	if cerr != nil {
		h.writeError(w, StatusForCode(cerr.Code), cerr)
		return
	}
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: result})
}

// MethodsHandler handles GET /api/v1/channel/ and lists the catalog.
func (h *HandlerContext) MethodsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ResultResponse{Result: channel.Methods})
}

// HealthHandler handles GET /health requests.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		h.writeHealth(w, HealthResponse{Status: health.StatusHealthy, Message: "OK"})
		return
	}
	results := h.healthChecker.Ready(r.Context())
	h.writeHealth(w, HealthResponse{
		Status: health.AggregateStatus(results),
		Uptime: h.healthChecker.Uptime().Round(time.Second).String(),
		Checks: results,
	})
}

// LiveHandler handles GET /health/live requests.
func (h *HandlerContext) LiveHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		h.writeHealth(w, HealthResponse{Status: health.StatusHealthy, Message: "Live"})
		return
	}
	result := h.healthChecker.Live(r.Context())
	h.writeHealth(w, HealthResponse{Status: result.Status, Message: result.Message})
}

// ReadyHandler handles GET /health/ready requests. Degraded checks still
// accept traffic.
func (h *HandlerContext) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		h.writeHealth(w, HealthResponse{Status: health.StatusHealthy, Message: "Ready"})
		return
	}
	results := h.healthChecker.Ready(r.Context())
	h.writeHealth(w, HealthResponse{Status: health.AggregateStatus(results), Checks: results})
}

// StartupHandler handles GET /health/startup requests.
func (h *HandlerContext) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		h.writeHealth(w, HealthResponse{Status: health.StatusHealthy, Message: "Started"})
		return
	}
	result := h.healthChecker.Startup(r.Context())
	h.writeHealth(w, HealthResponse{Status: result.Status, Message: result.Message})
}

// StatusForCode maps a channel error code to an HTTP status.
func StatusForCode(code keystore.ErrorCode) int {
	switch code {
	case keystore.CodeInvalidArgument:
		return http.StatusBadRequest
	case keystore.CodeNotImplemented:
		return http.StatusNotImplemented
	case keystore.CodeUserCancelled:
		return http.StatusConflict
	case keystore.CodeUnseal:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *HandlerContext) writeHealth(w http.ResponseWriter, resp HealthResponse) {
	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *HandlerContext) writeError(w http.ResponseWriter, status int, cerr *channel.Error) {
	h.writeJSON(w, status, ErrorResponse{Error: cerr})
}

func (h *HandlerContext) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", logging.Error(err))
	}
}
