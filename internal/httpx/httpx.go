// Package httpx holds the HTTP plumbing shared by the service handlers:
// routing, request logging, JSON responses and error mapping.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"deliverus/internal/logger"
	"deliverus/internal/metrics"
	"deliverus/internal/models"
)

// HeaderUserID carries the authenticated caller id set by the gateway.
const HeaderUserID = "X-User-Id"

// Routes is implemented by every handler mounted on the router.
type Routes interface {
	Register(r chi.Router)
}

// NewRouter builds the chi router with request id, logging, panic recovery
// and metrics middleware, and mounts every handler.
func NewRouter(log *logger.Logger, m *metrics.ServerMetrics, routes ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withLogging(log))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusNotFound, errorBody(r, "not_found", "Endpoint not found", ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusMethodNotAllowed, errorBody(r, "method_not_allowed", "Method not allowed", ""))
	})

	for _, rt := range routes {
		rt.Register(r)
	}
	return r
}

// withLogging stores the request id in the context and logs each request.
func withLogging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = logger.GenerateRequestID()
			}
			ctx := logger.WithRequestID(r.Context(), requestID)

			log.Debug("request_started", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Debug("request_completed", fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, status), requestID, map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	writeBody(w, status, v)
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func errorBody(r *http.Request, code, message, field string) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Field:     field,
		RequestID: logger.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// StatusFor maps an order error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	var (
		ve *models.ValidationError
		se *models.StateError
		ae *models.AuthorizationError
		ne *models.NotFoundError
		re *RequestError
	)
	switch {
	case errors.As(err, &re):
		return re.Status, re.Code
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.As(err, &se):
		return http.StatusConflict, "state_error"
	case errors.As(err, &ae):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &ne):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// WriteError maps err to a status and writes the error body. Persistence and
// unknown errors never expose their cause.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	var field string
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	writeBody(w, status, errorBody(r, code, message, field))
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RequestError is a malformed request rejected before reaching a service.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// CallerID returns the authenticated user id from the X-User-Id header.
func CallerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return 0, &RequestError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "missing " + HeaderUserID + " header"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &RequestError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "invalid " + HeaderUserID + " header"}
	}
	return id, nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &RequestError{Status: http.StatusBadRequest, Code: "invalid_id", Message: fmt.Sprintf("%s must be a positive integer", name)}
	}
	return id, nil
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return &RequestError{Status: http.StatusBadRequest, Code: "invalid_json", Message: "Invalid JSON format: " + err.Error()}
	}
	return nil
}
