// Package api is the HTTP surface of the registry. Errors are RFC 7807
// problem details; every handler funnels failures through WriteAppError so
// service-layer error kinds map to status codes in exactly one place.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/auth"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// statusFor maps service error kinds onto HTTP status codes.
func statusFor(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized, "Unauthorized"
	case apperr.KindForbidden:
		return http.StatusForbidden, "Forbidden"
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity, "Unprocessable Entity"
	case apperr.KindBadRequest:
		return http.StatusBadRequest, "Bad Request"
	case apperr.KindConflict:
		return http.StatusConflict, "Conflict"
	case apperr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge, "Payload Too Large"
	case apperr.KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType, "Unsupported Media Type"
	case apperr.KindLocked:
		return http.StatusLocked, "Locked"
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// WriteAppError renders a service error as a problem detail. Unknown errors
// are logged and masked as a generic 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error",
			"An unexpected error occurred.", nil)
		return
	}
	status, title := statusFor(ae.Kind)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeProblem(w, r, status, title, "An unexpected error occurred.", nil)
		return
	}
	writeProblem(w, r, status, title, ae.Message, ae.Details)
}

// WriteError renders a plain problem detail with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblem(w, r, status, http.StatusText(status), detail, nil)
}

// WriteTooManyRequests renders a 429 with a Retry-After hint.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, r, http.StatusTooManyRequests, "Too Many Requests",
		"Rate limit exceeded. Retry after the specified interval.", nil)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, fieldErrors map[string]string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://complia.dev/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  auth.GetRequestID(r.Context()),
		Errors:   fieldErrors,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}
