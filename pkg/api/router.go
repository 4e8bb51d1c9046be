package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/service"
)

// Server wires the service registry to HTTP routes.
type Server struct {
	reg    *service.Registry
	db     *sql.DB
	logger *slog.Logger
}

// Options configures the HTTP surface.
type Options struct {
	Registry       *service.Registry
	DB             *sql.DB
	Tokens         auth.TokenIssuer
	Limiter        auth.LimiterStore
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewHandler builds the full middleware-wrapped API handler.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{reg: opts.Registry, db: opts.DB, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readiness", s.handleReadiness)

	// Tenancy and authentication.
	mux.HandleFunc("POST /api/organizations", s.handleBootstrap)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/invites", s.handleInvite)
	mux.HandleFunc("POST /api/auth/invites/accept", s.handleAcceptInvite)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("PATCH /api/users/{userID}", s.handleUpdateUserRole)
	mux.HandleFunc("POST /api/users/{userID}/deactivate", s.handleDeactivateUser)
	mux.HandleFunc("DELETE /api/users/{userID}", s.handleDeleteUser)

	// AI-system catalogue.
	mux.HandleFunc("POST /api/systems", s.handleCreateSystem)
	mux.HandleFunc("GET /api/systems", s.handleListSystems)
	mux.HandleFunc("GET /api/systems/{systemID}", s.handleGetSystem)
	mux.HandleFunc("PUT /api/systems/{systemID}", s.handleUpdateSystem)
	mux.HandleFunc("DELETE /api/systems/{systemID}", s.handleDeleteSystem)
	mux.HandleFunc("POST /api/systems/{systemID}/assess", s.handleAssess)
	mux.HandleFunc("GET /api/systems/{systemID}/assessment", s.handleLatestAssessment)

	// Documentation versions.
	mux.HandleFunc("POST /api/systems/{systemID}/versions", s.handleCreateVersion)
	mux.HandleFunc("GET /api/systems/{systemID}/versions", s.handleListVersions)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}", s.handleGetVersion)
	mux.HandleFunc("PATCH /api/systems/{systemID}/versions/{versionID}", s.handleUpdateVersion)
	mux.HandleFunc("DELETE /api/systems/{systemID}/versions/{versionID}", s.handleDeleteVersion)
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/transition", s.handleTransition)
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/clone", s.handleClone)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/compare", s.handleCompare)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/manifest", s.handleManifest)

	// Annex IV sections.
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/sections", s.handleListSections)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/sections/{sectionKey}", s.handleGetSection)
	mux.HandleFunc("PUT /api/systems/{systemID}/versions/{versionID}/sections/{sectionKey}", s.handleUpdateSection)
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/sections/{sectionKey}/draft", s.handleDraftSection)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/completeness", s.handleCompleteness)

	// Evidence library.
	mux.HandleFunc("POST /api/evidence", s.handleCreateEvidence)
	mux.HandleFunc("GET /api/evidence", s.handleListEvidence)
	mux.HandleFunc("GET /api/evidence/{evidenceID}", s.handleGetEvidence)
	mux.HandleFunc("PUT /api/evidence/{evidenceID}", s.handleUpdateEvidence)
	mux.HandleFunc("DELETE /api/evidence/{evidenceID}", s.handleDeleteEvidence)
	mux.HandleFunc("POST /api/evidence/uploads", s.handlePresignUpload)
	mux.HandleFunc("GET /api/evidence/{evidenceID}/download", s.handleDownloadEvidence)

	// Evidence mappings.
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/mappings", s.handleCreateMapping)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/mappings", s.handleListMappings)
	mux.HandleFunc("DELETE /api/systems/{systemID}/versions/{versionID}/mappings/{mappingID}", s.handleDeleteMapping)

	// Exports.
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/exports", s.handleCreateExport)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/exports", s.handleListExports)
	mux.HandleFunc("GET /api/exports/{exportID}", s.handleGetExport)
	mux.HandleFunc("GET /api/exports/{exportID}/download", s.handleDownloadExport)

	// Decision logging.
	mux.HandleFunc("POST /api/systems/{systemID}/versions/{versionID}/log-keys", s.handleEnableLogging)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/log-keys", s.handleListLogKeys)
	mux.HandleFunc("DELETE /api/systems/{systemID}/versions/{versionID}/log-keys/{keyID}", s.handleRevokeLogKey)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/logs", s.handleListLogs)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/logs/{logID}", s.handleGetLog)
	mux.HandleFunc("GET /api/systems/{systemID}/versions/{versionID}/logs/export", s.handleExportLogs)
	mux.HandleFunc("POST /api/v1/logs", s.handleIngest)

	// Audit trail.
	mux.HandleFunc("GET /api/audit-events", s.handleListAuditEvents)

	limiter := opts.Limiter
	if limiter == nil {
		limiter = auth.NewMemoryLimiterStore()
	}
	return Chain(mux,
		auth.RequestIDMiddleware,
		RecoverMiddleware(logger),
		LoggingMiddleware(logger),
		auth.CORSMiddleware(opts.AllowedOrigins),
		RateLimitPath(limiter, auth.PolicyLogin, "/api/auth/login"),
		AuthMiddleware(opts.Tokens),
		RateLimitPath(limiter, auth.PolicyInvite, "/api/auth/invites"),
		RateLimitSuffix(limiter, auth.PolicyLLM, "/draft"),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// principal extracts the authenticated principal; the auth middleware
// guarantees it on protected routes.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusUnauthorized, "Authentication required.")
		return nil, false
	}
	return p, true
}
