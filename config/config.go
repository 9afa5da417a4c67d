// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every setting the server needs. Only MONGODB_URI and
// JWT_SECRET are required.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`
	// BaseURL prefixes mailed reset links. Required in release mode and
	// whenever SMTP is configured.
	BaseURL string `env:"BASE_URL"`

	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	CookieSecure   bool     `env:"COOKIE_SECURE" envDefault:"false"`

	Mongo MongoConfig
	Auth  AuthConfig
	Mail  MailConfig
	Redis RedisConfig
	Rate  RateLimitConfig

	RabbitMQURL       string        `env:"RABBITMQ_URL"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileGrace    time.Duration `env:"RECONCILE_GRACE" envDefault:"30s"`

	CloudinaryURL string `env:"CLOUDINARY_URL"`
	VAPID         VAPIDConfig
}

type MongoConfig struct {
	URI      string        `env:"MONGODB_URI,required,notEmpty"`
	Database string        `env:"MONGODB_DATABASE" envDefault:"socialfeed"`
	Timeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
}

type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"10"`
}

type MailConfig struct {
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     string        `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	FromEmail    string        `env:"FROM_EMAIL"`
	FromName     string        `env:"FROM_NAME" envDefault:"Social Feed"`
	Timeout      time.Duration `env:"MAIL_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" && m.FromEmail != ""
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

type RateLimitConfig struct {
	Enabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Limit   int           `env:"RATE_LIMIT_REQUESTS" envDefault:"20"`
	Window  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	Prefix  string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
}

type VAPIDConfig struct {
	PublicKey  string `env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `env:"VAPID_PRIVATE_KEY"`
	Subscriber string `env:"VAPID_SUBSCRIBER" envDefault:"mailto:admin@example.com"`
}

// Enabled reports whether Web Push can be used.
func (v VAPIDConfig) Enabled() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// Load reads a .env file when one exists and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: could not read .env file: %v", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSOrigins = compact(cfg.CORSOrigins)
	cfg.TrustedProxies = compact(cfg.TrustedProxies)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BaseURL == "" && (c.GinMode == "release" || c.Mail.Enabled()) {
		return errors.New("BASE_URL is required in release mode or when SMTP is configured")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("BASE_URL must be an absolute http(s) url, got %q", c.BaseURL)
		}
	}
	if len(c.CORSOrigins) == 0 {
		return errors.New("CORS_ORIGINS must list at least one origin")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
			}
		}
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 {
		return errors.New("RESET_TOKEN_TTL must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	if c.Rate.Enabled && (c.Rate.Limit < 1 || c.Rate.Window <= 0) {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// compact trims list entries and drops the empty ones.
func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
