package federation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider is a minimal OAuth server with a single user.
type fakeProvider struct {
	mu         sync.Mutex
	challenge  string
	tokenCode  int
	userStatus int
	profile    map[string]any
	emails     []githubEmail
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		challenge, code := f.challenge, f.tokenCode
		f.mu.Unlock()

		if code != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		sum := sha256.Sum256([]byte(r.Form.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"pkce"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(f.profile)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.emails)
	})
	return mux
}

func testState(t *testing.T) *jwtx.HMAC {
	t.Helper()
	h, err := jwtx.NewHMAC([]byte(strings.Repeat("s", 32)), "https://gatehouse.test")
	require.NoError(t, err)
	return h
}

func setup(t *testing.T, f *fakeProvider, build func(ProviderConfig) *Provider) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	p := build(ProviderConfig{ClientID: "cid", ClientSecret: "csecret", RedirectURL: "https://gatehouse.test/cb"})
	p.OAuth2.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.UserInfoURL = srv.URL + "/user"
	if p.EmailsURL != "" {
		p.EmailsURL = srv.URL + "/user/emails"
	}

	return &Client{
		Providers:  map[string]*Provider{p.Name: p},
		State:      testState(t),
		HTTPClient: srv.Client(),
	}
}

// begin runs Start and records the PKCE challenge the way the provider would.
func begin(t *testing.T, c *Client, f *fakeProvider, provider, invitation string) (StartResult, string) {
	t.Helper()
	res, err := c.Start(provider, invitation)
	require.NoError(t, err)

	u, err := url.Parse(res.AuthURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))

	f.mu.Lock()
	f.challenge = q.Get("code_challenge")
	f.mu.Unlock()
	return res, q.Get("state")
}

func TestGoogleLogin(t *testing.T) {
	t.Parallel()
	f := &fakeProvider{profile: map[string]any{
		"sub": "g-123", "email": "Bob@X.com", "email_verified": true,
		"name": "Bob", "picture": "https://img.test/bob.png",
	}}
	c := setup(t, f, NewGoogle)

	res, state := begin(t, c, f, Google, "inv-token")
	a, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
		Code: "code", State: state, StateCookie: res.StateCookie,
	})
	require.NoError(t, err)
	require.Equal(t, "bob@x.com", a.Email)
	require.Equal(t, "g-123", a.Federated.ExternalID)
	require.Equal(t, Google, a.Federated.Provider)
	require.Equal(t, "inv-token", a.InvitationToken)
	require.Equal(t, "https://img.test/bob.png", a.AvatarURL)
	require.NoError(t, a.Validate())
}

func TestGitHubUsesVerifiedPrimaryEmail(t *testing.T) {
	t.Parallel()
	f := &fakeProvider{
		profile: map[string]any{"id": 42, "login": "octo", "avatar_url": "https://img.test/o.png"},
		emails: []githubEmail{
			{Email: "old@x.com", Primary: false, Verified: true},
			{Email: "octo@x.com", Primary: true, Verified: true},
		},
	}
	c := setup(t, f, NewGitHub)

	res, state := begin(t, c, f, GitHub, "")
	a, err := c.ExchangeCallback(context.Background(), GitHub, CallbackParams{
		Code: "code", State: state, StateCookie: res.StateCookie,
	})
	require.NoError(t, err)
	require.Equal(t, "octo@x.com", a.Email)
	require.Equal(t, "42", a.Federated.ExternalID)
	require.Equal(t, "octo", a.DisplayName)
}

func TestDiscordUnverifiedEmailRejected(t *testing.T) {
	t.Parallel()
	f := &fakeProvider{profile: map[string]any{"id": "d1", "username": "dee", "email": "d@x.com", "verified": false}}
	c := setup(t, f, NewDiscord)

	res, state := begin(t, c, f, Discord, "")
	_, err := c.ExchangeCallback(context.Background(), Discord, CallbackParams{
		Code: "code", State: state, StateCookie: res.StateCookie,
	})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, KindProviderRejected, pe.Kind)
}

func TestCallbackFailures(t *testing.T) {
	t.Parallel()

	profile := map[string]any{"sub": "g-1", "email": "a@x.com", "email_verified": true}

	t.Run("state mismatch", func(t *testing.T) {
		f := &fakeProvider{profile: profile}
		c := setup(t, f, NewGoogle)
		res, _ := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			Code: "code", State: "forged", StateCookie: res.StateCookie,
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindStateMismatch, pe.Kind)
		require.Equal(t, "state_mismatch", pe.Rejection().ProviderKind)
	})

	t.Run("missing cookie", func(t *testing.T) {
		f := &fakeProvider{profile: profile}
		c := setup(t, f, NewGoogle)
		_, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{Code: "code", State: state})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindStateMismatch, pe.Kind)
	})

	t.Run("expired state", func(t *testing.T) {
		f := &fakeProvider{profile: profile}
		c := setup(t, f, NewGoogle)
		c.Now = func() time.Time { return time.Now().Add(-time.Hour) }
		res, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			Code: "code", State: state, StateCookie: res.StateCookie,
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindStateMismatch, pe.Kind)
	})

	t.Run("user denied consent", func(t *testing.T) {
		f := &fakeProvider{profile: profile}
		c := setup(t, f, NewGoogle)
		res, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			State: state, StateCookie: res.StateCookie, Error: "access_denied",
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindProviderRejected, pe.Kind)
	})

	t.Run("token endpoint down", func(t *testing.T) {
		f := &fakeProvider{profile: profile, tokenCode: http.StatusBadGateway}
		c := setup(t, f, NewGoogle)
		res, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			Code: "code", State: state, StateCookie: res.StateCookie,
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.True(t, pe.Transient())
		require.Equal(t, http.StatusBadGateway, pe.Status)
	})

	t.Run("code rejected", func(t *testing.T) {
		f := &fakeProvider{profile: profile, tokenCode: http.StatusBadRequest}
		c := setup(t, f, NewGoogle)
		res, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			Code: "code", State: state, StateCookie: res.StateCookie,
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindProviderRejected, pe.Kind)
	})

	t.Run("userinfo unavailable", func(t *testing.T) {
		f := &fakeProvider{profile: profile, userStatus: http.StatusServiceUnavailable}
		c := setup(t, f, NewGoogle)
		res, state := begin(t, c, f, Google, "")

		_, err := c.ExchangeCallback(context.Background(), Google, CallbackParams{
			Code: "code", State: state, StateCookie: res.StateCookie,
		})
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		require.Equal(t, KindTransient, pe.Kind)
	})

	t.Run("unknown provider", func(t *testing.T) {
		c := &Client{Providers: map[string]*Provider{}, State: testState(t)}
		_, err := c.ExchangeCallback(context.Background(), "myspace", CallbackParams{})
		require.ErrorIs(t, err, ErrUnknownProvider)
		_, err = c.Start("myspace", "")
		require.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestStateCookieBoundToProvider(t *testing.T) {
	t.Parallel()
	f := &fakeProvider{profile: map[string]any{"id": 1, "login": "x"}}
	gh := setup(t, f, NewGitHub)
	gh.Providers[Google] = NewGoogle(ProviderConfig{ClientID: "a", ClientSecret: "b"})

	res, state := begin(t, gh, f, GitHub, "")
	_, err := gh.ExchangeCallback(context.Background(), Google, CallbackParams{
		Code: "code", State: state, StateCookie: res.StateCookie,
	})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, KindStateMismatch, pe.Kind)
}
