package federation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Built in provider names.
const (
	Google  = "google"
	GitHub  = "github"
	Discord = "discord"
)

// ProviderConfig holds the OAuth client registration for one provider.
type ProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

func (c ProviderConfig) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" }

// Profile is the provider's view of the signed in account.
type Profile struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

type Provider struct {
	Name        string
	OAuth2      oauth2.Config
	UserInfoURL string

	// EmailsURL lists addresses with verification state when the profile
	// endpoint does not report it.
	EmailsURL string

	decode func(body []byte) (Profile, error)
}

func newProvider(name string, cfg ProviderConfig, ep oauth2.Endpoint, defaultScopes []string) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &Provider{
		Name: name,
		OAuth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       scopes,
		},
	}
}

func NewGoogle(cfg ProviderConfig) *Provider {
	p := newProvider(Google, cfg, endpoints.Google, []string{"openid", "email", "profile"})
	p.UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	p.decode = decodeGoogle
	return p
}

func NewGitHub(cfg ProviderConfig) *Provider {
	p := newProvider(GitHub, cfg, endpoints.GitHub, []string{"read:user", "user:email"})
	p.UserInfoURL = "https://api.github.com/user"
	p.EmailsURL = "https://api.github.com/user/emails"
	p.decode = decodeGitHub
	return p
}

func NewDiscord(cfg ProviderConfig) *Provider {
	p := newProvider(Discord, cfg, endpoints.Discord, []string{"identify", "email"})
	p.UserInfoURL = "https://discord.com/api/users/@me"
	p.decode = decodeDiscord
	return p
}

func decodeGoogle(body []byte) (Profile, error) {
	var v struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, err
	}
	return Profile{
		ExternalID:    v.Sub,
		Email:         v.Email,
		EmailVerified: v.EmailVerified,
		DisplayName:   v.Name,
		AvatarURL:     v.Picture,
	}, nil
}

// GitHub's profile email is only the public address and carries no
// verification state, so it is resolved through EmailsURL instead.
func decodeGitHub(body []byte) (Profile, error) {
	var v struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, err
	}
	p := Profile{DisplayName: v.Name, AvatarURL: v.AvatarURL}
	if v.ID != 0 {
		p.ExternalID = strconv.FormatInt(v.ID, 10)
	}
	if p.DisplayName == "" {
		p.DisplayName = v.Login
	}
	return p, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func primaryVerifiedEmail(body []byte) (string, error) {
	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func decodeDiscord(body []byte) (Profile, error) {
	var v struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
		Avatar     string `json:"avatar"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, err
	}
	p := Profile{
		ExternalID:    v.ID,
		Email:         v.Email,
		EmailVerified: v.Verified,
		DisplayName:   v.GlobalName,
	}
	if p.DisplayName == "" {
		p.DisplayName = v.Username
	}
	if v.Avatar != "" {
		p.AvatarURL = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", v.ID, v.Avatar)
	}
	return p, nil
}
