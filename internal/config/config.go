// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL, when set, promotes the revocation cache and rate-limit windows to a shared Redis store.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) for principal and vault password hashes; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// VaultKDFIterations is the PBKDF2 iteration count for new vault configurations.
	VaultKDFIterations int `mapstructure:"VAULT_KDF_ITERATIONS"`
	// VaultUnlockTTL is how long an unlocked vault scope may stay idle before the registry locks it ("0" disables).
	VaultUnlockTTL string `mapstructure:"VAULT_UNLOCK_TTL"`

	// LockoutThreshold is the number of consecutive failed logins that lock a principal.
	LockoutThreshold int `mapstructure:"LOCKOUT_THRESHOLD"`
	// LockoutCooldown is how long a locked principal stays locked (e.g. "15m").
	LockoutCooldown string `mapstructure:"LOCKOUT_COOLDOWN"`

	// TrustedProxies is a comma-separated list of IPs or CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// RateLimitCleanupInterval is how often stale rate windows are dropped (e.g. "5m").
	RateLimitCleanupInterval string `mapstructure:"RATE_LIMIT_CLEANUP_INTERVAL"`
	// RateLimitLogin, RateLimitPasswordReset, RateLimitVaultUnlock, RateLimitRefresh and RateLimitDefault
	// override the per-route table as "max/window" (e.g. "5/60s").
	RateLimitLogin         string `mapstructure:"RATE_LIMIT_LOGIN"`
	RateLimitPasswordReset string `mapstructure:"RATE_LIMIT_PASSWORD_RESET"`
	RateLimitVaultUnlock   string `mapstructure:"RATE_LIMIT_VAULT_UNLOCK"`
	RateLimitRefresh       string `mapstructure:"RATE_LIMIT_REFRESH"`
	RateLimitDefault       string `mapstructure:"RATE_LIMIT_DEFAULT"`

	// PolicyFile is an optional path to a Rego policy replacing the built-in access policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// SweepInterval is how often expired sessions and revocation entries are deleted (e.g. "1h").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	// Env is the application environment (e.g. "development", "production"). Selects the zap logger preset.
	Env string `mapstructure:"APP_ENV"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"SERVICE_NAME"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, security events are also written to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for security events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "trust-layer")
	v.SetDefault("JWT_AUDIENCE", "trust-layer-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("VAULT_KDF_ITERATIONS", 600000)
	v.SetDefault("VAULT_UNLOCK_TTL", "30m")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_COOLDOWN", "15m")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("RATE_LIMIT_CLEANUP_INTERVAL", "5m")
	v.SetDefault("RATE_LIMIT_LOGIN", "")
	v.SetDefault("RATE_LIMIT_PASSWORD_RESET", "")
	v.SetDefault("RATE_LIMIT_VAULT_UNLOCK", "")
	v.SetDefault("RATE_LIMIT_REFRESH", "")
	v.SetDefault("RATE_LIMIT_DEFAULT", "")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SERVICE_NAME", "trust-layer")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "trust-layer-security-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "trust-layer-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.VaultKDFIterations < 100000 {
		return nil, errors.New("config: VAULT_KDF_ITERATIONS must be at least 100000")
	}
	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}
	if _, err := cfg.TrustedProxyNets(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// LockoutCooldownDuration parses LockoutCooldown. Returns 15m if unset or invalid.
func (c *Config) LockoutCooldownDuration() time.Duration {
	return parseDuration(c.LockoutCooldown, 15*time.Minute)
}

// VaultUnlockTTLDuration parses VaultUnlockTTL. Returns 0 (no idle expiry) for "0", and 30m if unset or invalid.
func (c *Config) VaultUnlockTTLDuration() time.Duration {
	if strings.TrimSpace(c.VaultUnlockTTL) == "0" {
		return 0
	}
	return parseDuration(c.VaultUnlockTTL, 30*time.Minute)
}

// RateLimitCleanupEvery parses RateLimitCleanupInterval. Returns 5m if unset or invalid.
func (c *Config) RateLimitCleanupEvery() time.Duration {
	return parseDuration(c.RateLimitCleanupInterval, 5*time.Minute)
}

// SweepEvery parses SweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, time.Hour)
}

// TrustedProxyNets parses TrustedProxies into networks. Bare IPs become /32 or /128 networks.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	if c == nil || strings.TrimSpace(c.TrustedProxies) == "" {
		return nil, nil
	}
	var out []*net.IPNet
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", s)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			s = fmt.Sprintf("%s/%d", s, bits)
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// RateLimitOverrides returns the non-empty per-route overrides keyed by route name.
func (c *Config) RateLimitOverrides() map[string]string {
	out := map[string]string{}
	for route, v := range map[string]string{
		"login":          c.RateLimitLogin,
		"password_reset": c.RateLimitPasswordReset,
		"vault_unlock":   c.RateLimitVaultUnlock,
		"refresh":        c.RateLimitRefresh,
		"default":        c.RateLimitDefault,
	} {
		if s := strings.TrimSpace(v); s != "" {
			out[route] = s
		}
	}
	return out
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka export is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
