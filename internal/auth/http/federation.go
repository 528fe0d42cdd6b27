package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/federation"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	stateCookie     = "gatehouse_federation_state"
	stateCookiePath = "/v1/auth/federated/"
)

// FederationHandler runs the browser side of a federated login.
type FederationHandler struct {
	Federation        *federation.Client
	Authenticator     *service.Authenticator
	Resolver          *service.Resolver
	CookieSecure      bool
	PostLoginRedirect string
}

// HandleStart godoc
//
//	@Summary		Begin a federated login
//	@Description	Redirects to the provider. An invitation_token is carried through the round trip and redeemed on return.
//	@Tags			Federation
//	@Param			provider			path	string	true	"google, github or discord"
//	@Param			invitation_token	query	string	false	"Invitation to redeem"
//	@Success		302
//	@Failure		404	{object}	authsdk.ErrorResponse	"Provider not configured"
//	@Router			/v1/auth/federated/{provider}/start [get].
func (h *FederationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	res, err := h.Federation.Start(provider, r.URL.Query().Get("invitation_token"))
	if errors.Is(err, federation.ErrUnknownProvider) {
		httpx.WriteError(w, http.StatusNotFound, authsdk.CodeNotFound, "Unknown identity provider")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Lax so the cookie survives the top level redirect back from the provider.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    res.StateCookie,
		Path:     stateCookiePath,
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.NoCache(w)
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}

// HandleCallback godoc
//
//	@Summary		Finish a federated login
//	@Description	Verifies the state, redeems the code with the provider and resolves the verified email to a principal.
//	@Tags			Federation
//	@Produce		json
//	@Param			provider	path		string	true	"google, github or discord"
//	@Param			code		query		string	false	"Authorization code"
//	@Param			state		query		string	true	"State nonce"
//	@Success		200			{object}	authsdk.SessionResponse
//	@Success		303			"Redirect to the configured post login page"
//	@Failure		403			{object}	authsdk.ErrorResponse	"Rejected by policy or by the provider"
//	@Failure		502			{object}	authsdk.ErrorResponse	"Provider unavailable"
//	@Router			/v1/auth/federated/{provider}/callback [get].
func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := r.PathValue("provider")
	q := r.URL.Query()

	params := federation.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	if c, err := r.Cookie(stateCookie); err == nil {
		params.StateCookie = c.Value
	}

	// The state is single use whatever happens next.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	assertion, err := h.Federation.ExchangeCallback(ctx, provider, params)
	if err != nil {
		if errors.Is(err, federation.ErrUnknownProvider) {
			httpx.WriteError(w, http.StatusNotFound, authsdk.CodeNotFound, "Unknown identity provider")
			return
		}
		if pe, ok := federation.AsProviderError(err); ok {
			slogx.FromContext(ctx).Warn("federated callback failed", "err", pe)
			rej := pe.Rejection()
			h.Resolver.ReportProviderFailure(ctx, provider, rej)

			status := http.StatusForbidden
			if pe.Transient() {
				status = http.StatusBadGateway
			}
			httpx.WriteErrorKind(w, status, string(rej.Reason), rej.ProviderKind, rej.Message)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	s, err := h.Authenticator.LoginFederated(ctx, assertion)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if h.PostLoginRedirect != "" {
		setSessionCookie(w, s, h.CookieSecure)
		httpx.NoCache(w)
		http.Redirect(w, r, h.PostLoginRedirect, http.StatusSeeOther)
		return
	}
	writeSession(w, http.StatusOK, s, h.CookieSecure)
}
