package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
)

// Middleware is a composable handler wrapper.
type Middleware = func(http.Handler) http.Handler

// Chain applies middlewares outermost-first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RecoverMiddleware converts panics into 500 problem details.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic in handler",
						slog.String("path", r.URL.Path), slog.Any("panic", rec))
					WriteError(w, r, http.StatusInternalServerError, "An unexpected error occurred.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware emits one structured line per request.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", auth.GetRequestID(r.Context())),
			)
		})
	}
}

// publicPaths are reachable without a bearer token. Ingestion authenticates
// with its own API key inside the handler.
var publicPaths = map[string]bool{
	"/health":                  true,
	"/readiness":               true,
	"/api/organizations":       true,
	"/api/auth/login":          true,
	"/api/auth/refresh":        true,
	"/api/auth/invites/accept": true,
	"/api/v1/logs":             true,
}

// AuthMiddleware validates the bearer token and stores the principal in the
// request context.
func AuthMiddleware(tokens auth.TokenIssuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				WriteError(w, r, http.StatusUnauthorized, "Missing bearer token.")
				return
			}
			claims, err := tokens.Validate(strings.TrimPrefix(header, prefix))
			if err != nil || claims.Kind != "access" {
				WriteError(w, r, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}
			p := &auth.Principal{
				UserID: claims.Subject,
				OrgID:  claims.OrgID,
				Email:  claims.Email,
				Role:   model.Role(claims.Role),
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RateLimitPath applies a limit policy to one exact path, keyed by principal
// when present and client IP otherwise.
func RateLimitPath(limiter auth.LimiterStore, policy auth.LimitPolicy, path string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				next.ServeHTTP(w, r)
				return
			}
			actor := clientIP(r)
			if p, err := auth.GetPrincipal(r.Context()); err == nil {
				actor = p.UserID
			}
			ok, err := limiter.Allow(r.Context(), actor, policy)
			if err != nil {
				// A broken limiter backend must not take the API down.
				slog.WarnContext(r.Context(), "rate limiter unavailable", slog.Any("error", err))
				ok = true
			}
			if !ok {
				WriteTooManyRequests(w, r, int(policy.Window.Seconds()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitSuffix applies a limit policy to paths with the given suffix, for
// parameterized routes such as the per-section draft endpoint.
func RateLimitSuffix(limiter auth.LimiterStore, policy auth.LimitPolicy, suffix string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, suffix) {
				next.ServeHTTP(w, r)
				return
			}
			actor := clientIP(r)
			if p, err := auth.GetPrincipal(r.Context()); err == nil {
				actor = p.UserID
			}
			ok, err := limiter.Allow(r.Context(), actor, policy)
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter unavailable", slog.Any("error", err))
				ok = true
			}
			if !ok {
				WriteTooManyRequests(w, r, int(policy.Window.Seconds()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}
