package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one Gatehouse deployment. A Client with a Token makes
// authenticated calls; WithToken derives one.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	var out SessionResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/auth/login", nil, req, &out, http.StatusOK)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error) {
	var out SessionResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/auth/register", nil, req, &out, http.StatusCreated)
}

// CompleteMFA finishes a partial session. The client must carry the partial
// session token.
func (c *Client) CompleteMFA(ctx context.Context, code string) (*SessionResponse, error) {
	var out SessionResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/auth/mfa", nil, MFACodeRequest{Code: code}, &out, http.StatusOK)
}

func (c *Client) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	var out TOTPEnrollResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/mfa/totp/enroll", nil, nil, &out, http.StatusOK)
}

// VerifyTOTP confirms a pending enrolment from a full session.
func (c *Client) VerifyTOTP(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/mfa/totp/verify", nil, MFACodeRequest{Code: code}, nil, http.StatusNoContent)
}

func (c *Client) RemoveTOTP(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/v1/mfa/totp", nil, MFACodeRequest{Code: code}, nil, http.StatusNoContent)
}

func (c *Client) Me(ctx context.Context) (*UserInfoResponse, error) {
	var out UserInfoResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/me", nil, nil, &out, http.StatusOK)
}

func (c *Client) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*CreateInvitationResponse, error) {
	var out CreateInvitationResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/invitations", nil, req, &out, http.StatusCreated)
}

// ListInvitationsOptions filters ListInvitations. Zero values are omitted.
type ListInvitationsOptions struct {
	Status string
	Email  string
	After  string
	Limit  int
}

func (o ListInvitationsOptions) query() url.Values {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Email != "" {
		q.Set("email", o.Email)
	}
	if o.After != "" {
		q.Set("after", o.After)
	}
	if o.Limit > 0 {
		q.Set("limit", fmt.Sprint(o.Limit))
	}
	return q
}

func (c *Client) ListInvitations(ctx context.Context, opts ListInvitationsOptions) (*ListInvitationsResponse, error) {
	var out ListInvitationsResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/invitations", opts.query(), nil, &out, http.StatusOK)
}

func (c *Client) RevokeInvitation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/invitations/"+url.PathEscape(id), nil, nil, nil, http.StatusNoContent)
}

func (c *Client) GetSettings(ctx context.Context) (*SecuritySettings, error) {
	var out SecuritySettings
	return &out, c.do(ctx, http.MethodGet, "/v1/settings", nil, nil, &out, http.StatusOK)
}

func (c *Client) UpdateSettings(ctx context.Context, s SecuritySettings) (*SecuritySettings, error) {
	var out SecuritySettings
	return &out, c.do(ctx, http.MethodPut, "/v1/settings", nil, s, &out, http.StatusOK)
}

// Bootstrap creates the first owner. token is the deployment's bootstrap
// secret.
func (c *Client) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResponse, error) {
	var out BootstrapResponse
	return &out, c.WithToken("").doWithHeader(ctx, http.MethodPost, "/v1/bootstrap", nil, req, &out, http.StatusCreated,
		map[string]string{"X-Bootstrap-Token": token})
}

func (c *Client) Liveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/livez", nil, nil, &out, http.StatusOK)
}

// Readiness fails with a 503 *APIError while the database is unreachable.
func (c *Client) Readiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/readyz", nil, nil, &out, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, want int) error {
	return c.doWithHeader(ctx, method, path, query, body, out, want, nil)
}

func (c *Client) doWithHeader(
	ctx context.Context,
	method, path string,
	query url.Values,
	body, out any,
	want int,
	headers map[string]string,
) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: CodeServerError}
		var er ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			apiErr.Code, apiErr.Kind, apiErr.Description = er.Error, er.ErrorKind, er.ErrorDescription
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
