package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel int            `env:"LOG_LEVEL" envDefault:"0"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Admin    AdminConfig    `envPrefix:"ADMIN_"`
	Mail     MailConfig     `envPrefix:"MAILGUN_"`
	Postgres PostgresConfig
}

type HTTPConfig struct {
	Port             string   `env:"PORT" envDefault:"4000"`
	AllowedOrigins   []string `env:"CORS_ORIGINS" envSeparator:","`
	AllowCredentials bool     `env:"CORS_CREDENTIALS" envDefault:"false"`
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	ResetTTL   time.Duration `env:"RESET_TTL" envDefault:"3h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`
	// BaseURL is the front-end origin used to build reset links.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`
}

// AdminConfig describes the bootstrap identity. Its account can not be
// deleted and never loses the admin flag.
type AdminConfig struct {
	Name     string `env:"NAME" envDefault:"Admin"`
	Email    string `env:"EMAIL" envDefault:"admin@example.com"`
	Password string `env:"PASSWORD"`
}

type MailConfig struct {
	APIBase string `env:"API_BASE" envDefault:"https://api.mailgun.net"`
	Domain  string `env:"DOMAIN"`
	APIKey  string `env:"API_KEY"`
	From    string `env:"FROM" envDefault:"Amazona <me@mg.yourdomain.com>"`
}

type PostgresConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Host        string `env:"PGHOST" envDefault:"localhost"`
	Port        string `env:"PGPORT" envDefault:"5432"`
	User        string `env:"PGUSER"`
	Password    string `env:"PGPASSWORD"`
	Database    string `env:"PGDATABASE"`
	SSLMode     string `env:"PGSSLMODE" envDefault:"disable"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags can not express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL and AUTH_RESET_TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if strings.TrimSpace(c.Admin.Email) == "" {
		return fmt.Errorf("ADMIN_EMAIL is required")
	}
	return nil
}
