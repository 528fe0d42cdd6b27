// Package federation runs the OAuth 2.0 authorization code flow with PKCE
// against external identity providers and turns the result into an identity
// assertion. It never decides who may sign in.
package federation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"golang.org/x/oauth2"
)

const (
	DefaultStateTTL = 10 * time.Minute

	maxProfileBytes = 1 << 20
)

type Client struct {
	Providers  map[string]*Provider
	State      *jwtx.HMAC
	HTTPClient *http.Client
	StateTTL   time.Duration
	Now        func() time.Time
}

// StartResult is what the browser needs to begin a login. StateCookie must
// be returned on the callback request.
type StartResult struct {
	AuthURL     string
	StateCookie string
	ExpiresAt   time.Time
}

// CallbackParams are the query parameters and cookie of the callback.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	StateCookie      string
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) Provider(name string) (*Provider, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// Start prepares the provider redirect. invitationToken is optional and is
// carried through to the resulting assertion.
func (c *Client) Start(provider, invitationToken string) (StartResult, error) {
	p, ok := c.Provider(provider)
	if !ok {
		return StartResult{}, ErrUnknownProvider
	}

	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return StartResult{}, err
	}
	verifier := oauth2.GenerateVerifier()

	ttl := c.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	now := c.now()
	cookie, err := c.State.Sign(newStateClaims(c.State.Issuer(), p.Name, nonce, verifier, invitationToken, ttl, now))
	if err != nil {
		return StartResult{}, fmt.Errorf("sign federation state: %w", err)
	}

	return StartResult{
		AuthURL:     p.OAuth2.AuthCodeURL(nonce, oauth2.S256ChallengeOption(verifier)),
		StateCookie: cookie,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// ExchangeCallback verifies the returned state, redeems the code and maps
// the provider profile to an assertion. All failures after provider lookup
// are *ProviderError.
func (c *Client) ExchangeCallback(ctx context.Context, provider string, params CallbackParams) (domain.IdentityAssertion, error) {
	log := slogx.FromContext(ctx)

	p, ok := c.Provider(provider)
	if !ok {
		return domain.IdentityAssertion{}, ErrUnknownProvider
	}

	var st stateClaims
	if err := c.State.ParseInto(params.StateCookie, &st, jwtx.AudienceFederationState); err != nil {
		return domain.IdentityAssertion{}, providerErr(p.Name, "state", KindStateMismatch, 0, err)
	}
	if st.Provider != p.Name || subtle.ConstantTimeCompare([]byte(st.Nonce), []byte(params.State)) != 1 {
		return domain.IdentityAssertion{}, providerErr(p.Name, "state", KindStateMismatch, 0, errors.New("state does not match this login"))
	}

	if params.Error != "" {
		return domain.IdentityAssertion{}, providerErr(p.Name, "authorize", KindProviderRejected, 0,
			fmt.Errorf("%s: %s", params.Error, params.ErrorDescription))
	}
	if params.Code == "" {
		return domain.IdentityAssertion{}, providerErr(p.Name, "authorize", KindProviderRejected, 0, errors.New("missing authorization code"))
	}

	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	tok, err := p.OAuth2.Exchange(ctx, params.Code, oauth2.VerifierOption(st.Verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return domain.IdentityAssertion{}, providerErr(p.Name, "exchange", statusKind(re.Response.StatusCode), re.Response.StatusCode, err)
		}
		return domain.IdentityAssertion{}, providerErr(p.Name, "exchange", KindTransient, 0, err)
	}

	hc := p.OAuth2.Client(ctx, tok)
	profile, err := c.fetchProfile(ctx, hc, p)
	if err != nil {
		return domain.IdentityAssertion{}, err
	}

	if profile.ExternalID == "" {
		return domain.IdentityAssertion{}, providerErr(p.Name, "userinfo", KindProviderRejected, 0, errors.New("profile has no subject"))
	}
	if profile.Email == "" || !profile.EmailVerified {
		return domain.IdentityAssertion{}, providerErr(p.Name, "userinfo", KindProviderRejected, 0, errors.New("no verified email address"))
	}

	log.Debug("federated profile fetched",
		slog.String("provider", p.Name),
		slog.String("external_id", profile.ExternalID),
	)

	return domain.IdentityAssertion{
		Email:           profile.Email,
		Federated:       &domain.FederatedIdentity{Provider: p.Name, ExternalID: profile.ExternalID},
		DisplayName:     profile.DisplayName,
		AvatarURL:       profile.AvatarURL,
		InvitationToken: st.InvitationToken,
	}.Normalized(), nil
}

func (c *Client) fetchProfile(ctx context.Context, hc *http.Client, p *Provider) (Profile, error) {
	body, err := getBody(ctx, hc, p.Name, p.UserInfoURL)
	if err != nil {
		return Profile{}, err
	}
	profile, err := p.decode(body)
	if err != nil {
		return Profile{}, providerErr(p.Name, "userinfo", KindProviderRejected, 0, err)
	}

	if p.EmailsURL != "" && (profile.Email == "" || !profile.EmailVerified) {
		body, err := getBody(ctx, hc, p.Name, p.EmailsURL)
		if err != nil {
			return Profile{}, err
		}
		email, err := primaryVerifiedEmail(body)
		if err != nil {
			return Profile{}, providerErr(p.Name, "userinfo", KindProviderRejected, 0, err)
		}
		if email != "" {
			profile.Email, profile.EmailVerified = email, true
		}
	}
	return profile, nil
}

func getBody(ctx context.Context, hc *http.Client, provider, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, providerErr(provider, "userinfo", KindProviderRejected, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, providerErr(provider, "userinfo", KindTransient, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providerErr(provider, "userinfo", statusKind(resp.StatusCode), resp.StatusCode, nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, providerErr(provider, "userinfo", KindTransient, 0, err)
	}
	return body, nil
}
