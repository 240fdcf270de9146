package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/joho/godotenv"
)

type Config struct {
	Issuer   string   // Issuer claim for access tokens (default: purse-auth)
	Audience []string // Audience claim for access tokens, comma separated (default: purse)

	Algorithm      string        // JWT signing algorithm (EdDSA, ES256) (default: EdDSA)
	NumKeys        int           // Number of active signing keys (default: 3, min: 1, max: 10)
	KeyStorageMode string        // ephemeral or persistent (default: ephemeral)
	KeyGracePeriod time.Duration // How long retired keys keep verifying (default: 30 days)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite database path (default: ./auth.db)
	DatabaseURL    string // Postgres DSN, required for the postgres driver

	PepperFile        string // Password pepper, created on first start (default: ./pepper)
	EncryptionKey     string // Base64 AES-256 key sealing TOTP secrets and signing keys
	EncryptionKeyFile string // File holding the same, used when EncryptionKey is empty
	HashConcurrency   int    // Concurrent Argon2id hashes (default: GOMAXPROCS)

	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RefreshShortTTL       time.Duration // Refresh lifetime without remember me
	MFAMaxAttempts        int
	RememberedDeviceTTL   time.Duration
	AuditBufferSize       int
	HousekeepingInterval  time.Duration // 0 disables housekeeping
	HousekeepingRetention time.Duration

	TrustProxy   bool   // Take the client IP from X-Forwarded-For
	CookieSecure bool   // Secure flag on session cookies (default: true outside dev)
	CookieDomain string // Cookie domain, empty means host-only

	MailerBaseURL   string // Front end serving the verify and reset pages
	MailerLogLinks  bool   // Log the tokenised links (dev only)
	RateLimits      httpx.RateLimitProfiles
	Env             string // Environment (dev, staging, prod) (default: dev)
	LogLevel        string // Log level (debug, info, warn, error) (default: info)
	LogFormat       string // Log format (json, text) (default: json)
	Port            int    // HTTP server port (default: 8080)
	ShutdownTimeout time.Duration
}

// LoadConfig reads the environment, after loading .env from the working
// directory when there is one.
func LoadConfig() Config {
	_ = godotenv.Load()

	env := getEnvOrDefault("ENV", "dev")
	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "purse-auth"),
		Audience:       splitList(getEnvOrDefault("AUTH_AUDIENCE", "purse")),
		Algorithm:      getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmEdDSA),
		NumKeys:        getEnvIntOrDefault("AUTH_NUM_KEYS", 3),
		KeyStorageMode: getEnvOrDefault("AUTH_KEY_STORAGE_MODE", "ephemeral"),
		KeyGracePeriod: getEnvDurationOrDefault("AUTH_KEY_GRACE_PERIOD", 30*24*time.Hour),

		DatabaseDriver: getEnvOrDefault("AUTH_DATABASE_DRIVER", "sqlite"),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		DatabaseURL:    os.Getenv("AUTH_DATABASE_URL"),

		PepperFile:        getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		EncryptionKey:     os.Getenv("AUTH_ENCRYPTION_KEY"),
		EncryptionKeyFile: os.Getenv("AUTH_ENCRYPTION_KEY_FILE"),
		HashConcurrency:   getEnvIntOrDefault("AUTH_HASH_CONCURRENCY", 0),

		AccessTTL:             getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:            getEnvDurationOrDefault("AUTH_REFRESH_TTL", service.DefaultRefreshTokenTTL),
		RefreshShortTTL:       getEnvDurationOrDefault("AUTH_REFRESH_SHORT_TTL", service.DefaultRefreshTokenShortTTL),
		MFAMaxAttempts:        getEnvIntOrDefault("AUTH_MFA_MAX_ATTEMPTS", service.DefaultMaxChallengeAttempts),
		RememberedDeviceTTL:   getEnvDurationOrDefault("AUTH_REMEMBERED_DEVICE_TTL", service.DefaultRememberedDeviceTTL),
		AuditBufferSize:       getEnvIntOrDefault("AUTH_AUDIT_BUFFER", 256),
		HousekeepingInterval:  getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		HousekeepingRetention: getEnvDurationOrDefault("HOUSEKEEPING_RETENTION", 7*24*time.Hour),

		TrustProxy:   getEnvBoolOrDefault("AUTH_TRUST_PROXY", false),
		CookieSecure: getEnvBoolOrDefault("AUTH_COOKIE_SECURE", env != "dev"),
		CookieDomain: os.Getenv("AUTH_COOKIE_DOMAIN"),

		MailerBaseURL:   os.Getenv("AUTH_MAILER_BASE_URL"),
		MailerLogLinks:  getEnvBoolOrDefault("AUTH_MAILER_LOG_LINKS", env == "dev"),
		RateLimits:      httpx.RateLimitProfilesFromEnv(),
		Env:             env,
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "json"),
		Port:            getEnvIntOrDefault("PORT", 8080),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	return cfg
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	switch c.KeyStorageMode {
	case "ephemeral", "persistent":
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_KEY_STORAGE_MODE %q", c.KeyStorageMode))
	}

	if c.Env != "dev" && c.EncryptionKey == "" && c.EncryptionKeyFile == "" {
		errs = append(errs, errors.New("AUTH_ENCRYPTION_KEY or AUTH_ENCRYPTION_KEY_FILE is required outside dev"))
	}
	if c.KeyStorageMode == "persistent" && c.EncryptionKey == "" && c.EncryptionKeyFile == "" {
		errs = append(errs, errors.New("persistent signing keys need AUTH_ENCRYPTION_KEY or AUTH_ENCRYPTION_KEY_FILE"))
	}
	if c.RefreshShortTTL > c.RefreshTTL {
		errs = append(errs, errors.New("AUTH_REFRESH_SHORT_TTL must not exceed AUTH_REFRESH_TTL"))
	}
	if c.MFAMaxAttempts < 1 {
		errs = append(errs, errors.New("AUTH_MFA_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
