package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/federation"
	"github.com/aussiebroadwan/gatehouse/internal/auth/metrics"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"

	_ "github.com/aussiebroadwan/gatehouse/api/gatehouse" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	metrics      *metrics.Metrics

	// CookieSecure marks session and state cookies Secure. Disable only for
	// plain http development.
	CookieSecure bool

	// PostLoginRedirect, when set, is where a completed federated login
	// sends the browser instead of answering with JSON.
	PostLoginRedirect string

	Now func() time.Time

	Authenticator     *service.Authenticator
	Resolver          *service.Resolver
	Federation        *federation.Client
	InvitationService *service.InvitationService
	SettingsService   *service.SettingsService
	MFAService        *service.MFAService
	UserService       *service.UserService
	BootstrapService  *service.BootstrapService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		metrics:      m,
		logger:       logger,
		CookieSecure: true,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerFederation()
	r.registerUsers()
	r.registerMFA()
	r.registerInvitations()
	r.registerSettings()
	r.registerBootstrap()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatehouse Identity Service API
//	@version		0.1.0
//	@description	Invitation gated sign in for local and federated accounts.
//	@description
//	@description				Sessions are HS256 JWTs returned in the response body and in the gatehouse_session cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatehouse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// admin is the chain every administrative endpoint shares.
func (r *Router) admin(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.RequireSession(r.verifier),
		httpx.RequireRole(string(domain.RoleAdmin), string(domain.RoleOwner)),
		httpx.RateLimit(httpx.ModerateLimit, httpx.SessionKeyExtractor),
	)
}

func (r *Router) registerAuth() {
	h := &SessionHandler{
		Authenticator: r.Authenticator,
		CookieSecure:  r.CookieSecure,
	}

	// Credential endpoints are limited per IP to slow guessing.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimit(httpx.StrictLimit, httpx.IPKeyExtractor),
		),
	)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimit(httpx.StrictLimit, httpx.IPKeyExtractor),
		),
	)

	// Only partial sessions may finish a second factor.
	r.Mux.Handle("POST /v1/auth/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleCompleteMFA),
			httpx.RequireSession(r.verifier, jwtx.StageMFAEnroll, jwtx.StageMFAChallenge),
			httpx.RateLimit(httpx.StrictLimit, httpx.SessionKeyExtractor),
		),
	)
	r.Mux.HandleFunc("POST /v1/auth/logout", h.HandleLogout)
}

func (r *Router) registerFederation() {
	if r.Federation == nil {
		return
	}
	h := &FederationHandler{
		Federation:        r.Federation,
		Authenticator:     r.Authenticator,
		Resolver:          r.Resolver,
		CookieSecure:      r.CookieSecure,
		PostLoginRedirect: r.PostLoginRedirect,
	}

	r.Mux.Handle("GET /v1/auth/federated/{provider}/start",
		httpx.Chain(http.HandlerFunc(h.HandleStart),
			httpx.RateLimit(httpx.ModerateLimit, httpx.IPKeyExtractor),
		),
	)
	r.Mux.Handle("GET /v1/auth/federated/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimit(httpx.StrictLimit, httpx.IPKeyExtractor),
		),
	)
}

func (r *Router) registerUsers() {
	h := &UserInfoHandler{UserService: r.UserService}

	r.Mux.Handle("GET /v1/me",
		httpx.Chain(h,
			httpx.RequireSession(r.verifier),
			httpx.RateLimit(httpx.ModerateLimit, httpx.SessionKeyExtractor),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	// Enrolment is also reachable from the session issued when a second
	// factor is required but missing.
	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			httpx.RequireSession(r.verifier, jwtx.StageFull, jwtx.StageMFAEnroll),
			httpx.RateLimit(httpx.ModerateLimit, httpx.SessionKeyExtractor),
		),
	)
	r.Mux.Handle("POST /v1/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RequireSession(r.verifier),
			httpx.RateLimit(httpx.StrictLimit, httpx.SessionKeyExtractor),
		),
	)
	r.Mux.Handle("DELETE /v1/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleRemove),
			httpx.RequireSession(r.verifier),
			httpx.RateLimit(httpx.StrictLimit, httpx.SessionKeyExtractor),
		),
	)
}

func (r *Router) registerInvitations() {
	h := &InvitationHandler{InvitationService: r.InvitationService, Now: r.now}

	r.Mux.Handle("POST /v1/invitations", r.admin(h.HandleCreate))
	r.Mux.Handle("GET /v1/invitations", r.admin(h.HandleList))
	r.Mux.Handle("DELETE /v1/invitations/{id}", r.admin(h.HandleRevoke))
}

func (r *Router) registerSettings() {
	h := &SettingsHandler{SettingsService: r.SettingsService}

	r.Mux.Handle("GET /v1/settings", r.admin(h.HandleGet))
	r.Mux.Handle("PUT /v1/settings", r.admin(h.HandleUpdate))
}

func (r *Router) registerBootstrap() {
	h := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(h,
			httpx.RateLimit(httpx.StrictLimit, httpx.IPKeyExtractor),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
