package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/jwtx"
	"github.com/caseloop/twofactor/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	EnrollmentService   *service.EnrollmentService
	VerificationService *service.VerificationService
	DeviceTrustService  *service.DeviceTrustService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerEnrollment()
	r.registerVerification()
	r.registerDevices()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerEnrollment() {
	h := &EnrollmentHandler{Enrollment: r.EnrollmentService}

	// POST /2fa/enrollment - moderate rate limit (settings-page operation)
	r.Mux.Handle("POST /v1/2fa/enrollment",
		httpx.Chain(http.HandlerFunc(h.HandleBegin),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/enrollment/confirm - strict rate limit (code submission)
	r.Mux.Handle("POST /v1/2fa/enrollment/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// DELETE /2fa - moderate rate limit
	r.Mux.Handle("DELETE /v1/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/recovery-codes - strict rate limit (code submission)
	r.Mux.Handle("POST /v1/2fa/recovery-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateRecoveryCodes),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerVerification() {
	h := &VerifyHandler{
		Verification: r.VerificationService,
		DeviceTrust:  r.DeviceTrustService,
	}

	// POST /2fa/challenge - moderate rate limit by user
	r.Mux.Handle("POST /v1/2fa/challenge",
		httpx.Chain(http.HandlerFunc(h.HandleChallenge),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/verify - strict rate limit (brute force target). The nonce
	// carries the user binding; the service token still gates the route.
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /2fa/verify/recovery - strict rate limit
	r.Mux.Handle("POST /v1/2fa/verify/recovery",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyRecovery),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerDevices() {
	h := &DevicesHandler{DeviceTrust: r.DeviceTrustService}

	// POST /devices/check - strict rate limit (runs on every login)
	r.Mux.Handle("POST /v1/devices/check",
		httpx.Chain(http.HandlerFunc(h.HandleCheck),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /devices - moderate rate limit (settings UI)
	r.Mux.Handle("GET /v1/devices",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// DELETE /devices/{id} - moderate rate limit
	r.Mux.Handle("DELETE /v1/devices/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
