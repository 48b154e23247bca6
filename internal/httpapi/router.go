package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"doc_gateway/internal/auth"
	"doc_gateway/internal/config"
	"doc_gateway/internal/jobs"
	"doc_gateway/internal/ledger"
	"doc_gateway/internal/logging"
	"doc_gateway/internal/middleware"
	"doc_gateway/internal/models"
	"doc_gateway/internal/payment"
	"doc_gateway/internal/ratelimit"
	"doc_gateway/internal/utils"
)

// AdminStore is the slice of the admin-user repository the login handler
// needs.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// Converter is the backend boundary as the handlers see it.
type Converter = jobs.Converter

// Dependencies aggregates the services the HTTP layer composes.
type Dependencies struct {
	Config     *config.Config
	Registry   *auth.Registry
	Ledger     *ledger.Service
	Limiter    ratelimit.Limiter
	Tracker    *jobs.Tracker
	Backend    Converter
	Payment    payment.Authorizer
	AdminUsers AdminStore
	Audit      *logging.AuditLogger
	Logger     *utils.Logger
	Health     func(ctx context.Context) error
}

// NewRouter wires the HTTP surface. Dependency construction happens in
// cmd/gateway; the router only composes.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = utils.NewLogger("httpapi", utils.Info)
	}

	h := &handlers{deps: deps}
	admin := &adminHandlers{deps: deps}

	withKey := middleware.APIKeyMiddleware(deps.Registry)
	withAdmin := middleware.AdminJWTMiddleware(deps.Config)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /v1/keys", h.issueKey)
	mux.Handle("GET /v1/keys/me", withKey(http.HandlerFunc(h.keyInfo)))
	mux.Handle("DELETE /v1/keys/me", withKey(http.HandlerFunc(h.selfRevoke)))

	mux.Handle("POST /v1/convert", withKey(http.HandlerFunc(h.convertSync)))
	mux.Handle("POST /v1/convert/async", withKey(http.HandlerFunc(h.convertAsync)))
	mux.Handle("GET /v1/jobs/{id}", withKey(http.HandlerFunc(h.jobStatus)))

	mux.Handle("POST /v1/billing/topup", withKey(http.HandlerFunc(h.topup)))
	mux.HandleFunc("GET /v1/billing/packages", h.packages)

	mux.HandleFunc("POST /admin/auth/login", admin.login)
	mux.Handle("GET /admin/keys", withAdmin(http.HandlerFunc(admin.listKeys)))
	mux.Handle("POST /admin/keys/{id}/revoke", withAdmin(http.HandlerFunc(admin.revokeKey)))
	mux.Handle("POST /admin/keys/{id}/credits", withAdmin(http.HandlerFunc(admin.grantCredits)))
	mux.Handle("GET /admin/jobs/{id}", withAdmin(http.HandlerFunc(admin.getJob)))
	mux.Handle("GET /admin/anomalies", withAdmin(http.HandlerFunc(admin.anomalies)))

	return auditMiddleware(deps.Audit)(mux)
}

// auditInfo is a mutable carrier filled in by handlers as the request moves
// inward, then drained into one audit entry on the way out.
type auditInfo struct {
	keyID   string
	jobID   string
	outcome string
	credits int
}

type auditInfoKey struct{}

func annotateAudit(r *http.Request, fn func(*auditInfo)) {
	if info, ok := r.Context().Value(auditInfoKey{}).(*auditInfo); ok {
		fn(info)
	}
}

// statusRecorder captures the response code for the audit trail.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func auditMiddleware(audit *logging.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if audit == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &auditInfo{}
			r = r.WithContext(context.WithValue(r.Context(), auditInfoKey{}, info))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			audit.Record(logging.AuditEntry{
				Method:     r.Method,
				Path:       r.URL.Path,
				KeyID:      info.keyID,
				JobID:      info.jobID,
				Status:     rec.status,
				Outcome:    info.outcome,
				Credits:    info.credits,
				LatencyMS:  time.Since(start).Milliseconds(),
				RemoteAddr: r.RemoteAddr,
			})
		})
	}
}
