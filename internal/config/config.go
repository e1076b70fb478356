package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/newsroom-auth/internal/database"
)

// Config holds all runtime configuration values.  Each field corresponds to
// one or more environment variables; only JWT_SECRET is required.
type Config struct {
	Env     string // application environment (dev, test, prod)
	Port    string // HTTP port to listen on
	BaseURL string // public URL used in mailed links

	DB database.Options

	JWTSecret   string
	AccessTTL   time.Duration // ACCESS_TOKEN_TTL_MIN
	RememberTTL time.Duration // REFRESH_TOKEN_TTL_DAYS, refresh tokens with remember-me
	SessionTTL  time.Duration // SESSION_TOKEN_TTL_HOURS, all other refresh tokens
	BcryptCost  int

	DefaultRole         string
	MFAIssuer           string
	BootstrapAdminEmail string // promoted to super_admin at start-up when set

	RequestTimeout       time.Duration
	TokenCleanupInterval time.Duration
	TokenRetention       time.Duration

	Mail MailConfig
}

// CookieSecure reports whether auth cookies carry the Secure flag.
func (c Config) CookieSecure() bool { return c.Env == "prod" }

// IsDev reports whether the service runs in local development.
func (c Config) IsDev() bool { return c.Env == "dev" || c.Env == "" }

// Load reads the configuration and exits the process when it is invalid.
func Load() Config {
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// FromEnv reads configuration values from environment variables, applying
// defaults for everything optional.
func FromEnv() (Config, error) {
	secret, err := must("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Env:     envStr("APP_ENV", "dev"),
		Port:    envStr("APP_PORT", "8080"),
		BaseURL: envStr("APP_BASE_URL", "http://localhost:8080"),
		DB: database.Options{
			Driver: strings.ToLower(envStr("DB_DRIVER", database.DriverMySQL)),
			User:   envStr("DB_USER", "root"),
			Pass:   os.Getenv("DB_PASS"), // empty allowed
			Host:   envStr("DB_HOST", "127.0.0.1"),
			Port:   envStr("DB_PORT", "3306"),
			Name:   envStr("DB_NAME", "newsroom"),
			Path:   envStr("DB_PATH", "newsroom.db"),
		},
		JWTSecret:            secret,
		AccessTTL:            time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RememberTTL:          time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
		SessionTTL:           time.Duration(envInt("SESSION_TOKEN_TTL_HOURS", 24)) * time.Hour,
		BcryptCost:           envInt("BCRYPT_COST", 12),
		DefaultRole:          envStr("DEFAULT_ROLE", "public"),
		MFAIssuer:            envStr("MFA_ISSUER", "Newsroom"),
		BootstrapAdminEmail:  os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		RequestTimeout:       envDur("REQUEST_TIMEOUT", 5*time.Second),
		TokenCleanupInterval: envDur("TOKEN_CLEANUP_INTERVAL", time.Hour),
		TokenRetention:       envDur("TOKEN_RETENTION", 7*24*time.Hour),
		Mail:                 LoadMailConfig(),
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes in prod")
	}
	if cfg.AccessTTL <= 0 || cfg.RememberTTL <= 0 || cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("token lifetimes must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("invalid BCRYPT_COST %d", cfg.BcryptCost)
	}
	if _, err := cfg.DB.DSN(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// must retrieves the value of a required environment variable.
func must(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
