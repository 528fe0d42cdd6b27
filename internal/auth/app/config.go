package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/aussiebroadwan/gatehouse/internal/auth/federation"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Issuer         string `env:"GATEHOUSE_ISSUER" envDefault:"gatehouse"`
	BootstrapToken string `env:"BOOTSTRAP_TOKEN"` // Optional: enables POST /v1/bootstrap while no account exists

	DatabaseDriver string `env:"GATEHOUSE_DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseFile   string `env:"GATEHOUSE_DATABASE_FILE" envDefault:"gatehouse.db"` // sqlite only
	DatabaseURL    string `env:"GATEHOUSE_DATABASE_URL"`                            // postgres only

	PepperFile     string `env:"GATEHOUSE_PEPPER_FILE" envDefault:"pepper"`
	SigningKeyFile string `env:"GATEHOUSE_SIGNING_KEY_FILE" envDefault:"signing.key"`

	// PublicURL is where browsers reach this service. Provider redirect URLs
	// default to PublicURL + /v1/auth/federated/{provider}/callback.
	PublicURL         string `env:"GATEHOUSE_PUBLIC_URL" envDefault:"http://localhost:8080"`
	PostLoginRedirect string `env:"GATEHOUSE_POST_LOGIN_REDIRECT"`
	CookieSecure      bool   `env:"GATEHOUSE_COOKIE_SECURE" envDefault:"true"`

	Google  federation.ProviderConfig `envPrefix:"GATEHOUSE_GOOGLE_"`
	GitHub  federation.ProviderConfig `envPrefix:"GATEHOUSE_GITHUB_"`
	Discord federation.ProviderConfig `envPrefix:"GATEHOUSE_DISCORD_"`

	SettingsCacheTTL     time.Duration `env:"GATEHOUSE_SETTINGS_CACHE_TTL" envDefault:"30s"`
	InvitationTokenBytes int           `env:"GATEHOUSE_INVITATION_TOKEN_BYTES" envDefault:"32"`
	NotifyTimeout        time.Duration `env:"GATEHOUSE_NOTIFY_TIMEOUT" envDefault:"10s"`
	AuditRetention       time.Duration `env:"GATEHOUSE_AUDIT_RETENTION" envDefault:"2160h"`

	StrictLimit   httpx.RateLimitConfig `envPrefix:"RATELIMIT_STRICT_"`
	ModerateLimit httpx.RateLimitConfig `envPrefix:"RATELIMIT_MODERATE_"`

	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig reads the environment. Rate limits start from the router
// defaults so only the overridden fields need setting.
func LoadConfig() (Config, error) {
	cfg := Config{
		StrictLimit:   httpx.StrictLimit,
		ModerateLimit: httpx.ModerateLimit,
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var fileRules, urlRules []validation.Rule
	switch c.DatabaseDriver {
	case DriverSQLite:
		fileRules = append(fileRules, validation.Required)
	case DriverPostgres:
		urlRules = append(urlRules, validation.Required)
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DatabaseFile, fileRules...),
		validation.Field(&c.DatabaseURL, urlRules...),
		validation.Field(&c.PublicURL, validation.Required),
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.InvitationTokenBytes, validation.Min(16)),
		validation.Field(&c.StrictLimit, validation.By(validLimit)),
		validation.Field(&c.ModerateLimit, validation.By(validLimit)),
	)
}

func validLimit(v any) error {
	l, _ := v.(httpx.RateLimitConfig)
	if l.RequestsPerWindow <= 0 || l.Window <= 0 || l.Burst <= 0 {
		return errors.New("requests, window and burst must be positive")
	}
	return nil
}

// providers returns the configured identity providers keyed by name.
func (c Config) providers() map[string]*federation.Provider {
	out := make(map[string]*federation.Provider)
	for name, build := range map[string]struct {
		cfg federation.ProviderConfig
		new func(federation.ProviderConfig) *federation.Provider
	}{
		federation.Google:  {c.Google, federation.NewGoogle},
		federation.GitHub:  {c.GitHub, federation.NewGitHub},
		federation.Discord: {c.Discord, federation.NewDiscord},
	} {
		if !build.cfg.Enabled() {
			continue
		}
		pc := build.cfg
		if pc.RedirectURL == "" {
			pc.RedirectURL = c.PublicURL + "/v1/auth/federated/" + name + "/callback"
		}
		out[name] = build.new(pc)
	}
	return out
}
