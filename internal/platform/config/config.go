package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr string

	// PostgresDSN enables the Postgres store variants when set; the memory
	// stores are used otherwise.
	PostgresDSN string

	// Redis backs the distributed rate-limit window when configured.
	Redis RedisConfig

	// KafkaBrokers enables the explorer outbox publisher when non-empty.
	KafkaBrokers []string
	// KafkaTopic is the topic explorer entries are published to.
	KafkaTopic string

	// JWTSigningKey verifies operator tokens on privileged endpoints.
	JWTSigningKey string

	// Injection policy.
	DailyCap         string        // decimal amount, e.g. "10000000"
	AnomalyThreshold string        // single-transaction trip level
	WindowDuration   time.Duration // rate-limit window length
	PerAccountWindow bool          // one window per custody account instead of global

	// LockTTL bounds the authorization window of a lock before it becomes
	// rejectable as expired.
	LockTTL time.Duration

	// Upstream read policy (compliance gate, price oracle).
	UpstreamTimeout time.Duration
	OracleStaleness time.Duration

	// ComplianceURL points at the external compliance gate. Empty means
	// the permissive static gate, for development only.
	ComplianceURL string

	// CurrencyCode is the reference currency injections are priced in.
	CurrencyCode string

	// RoleGrants seeds the in-memory role registry, "role:principal" pairs.
	// Production deployments resolve roles against the governance service
	// and leave this empty.
	RoleGrants []string

	// VerificationMode selects the signature policy: classical-only,
	// dual-required or quantum-preferred.
	VerificationMode string
}

// RedisConfig mirrors the connection knobs the redis client needs.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("RESERVEMINT_ADDR", ":8080"),
		PostgresDSN:      os.Getenv("RESERVEMINT_POSTGRES_DSN"),
		KafkaTopic:       envOr("RESERVEMINT_KAFKA_TOPIC", "reservemint.explorer"),
		JWTSigningKey:    envOr("RESERVEMINT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DailyCap:         envOr("RESERVEMINT_DAILY_CAP", "10000000"),
		AnomalyThreshold: envOr("RESERVEMINT_ANOMALY_THRESHOLD", "5000000"),
		WindowDuration:   envDurationOr("RESERVEMINT_WINDOW_DURATION", 24*time.Hour),
		PerAccountWindow: os.Getenv("RESERVEMINT_PER_ACCOUNT_WINDOW") == "true",
		LockTTL:          envDurationOr("RESERVEMINT_LOCK_TTL", 72*time.Hour),
		UpstreamTimeout:  envDurationOr("RESERVEMINT_UPSTREAM_TIMEOUT", 3*time.Second),
		OracleStaleness:  envDurationOr("RESERVEMINT_ORACLE_STALENESS", 5*time.Minute),
		ComplianceURL:    os.Getenv("RESERVEMINT_COMPLIANCE_URL"),
		CurrencyCode:     envOr("RESERVEMINT_CURRENCY_CODE", "USD"),
		VerificationMode: envOr("RESERVEMINT_VERIFICATION_MODE", "classical-only"),
	}

	if brokers := os.Getenv("RESERVEMINT_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}
	if grants := os.Getenv("RESERVEMINT_ROLE_GRANTS"); grants != "" {
		cfg.RoleGrants = splitCSV(grants)
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("RESERVEMINT_REDIS_URL"),
		PoolSize:     envIntOr("RESERVEMINT_REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("RESERVEMINT_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDurationOr("RESERVEMINT_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDurationOr("RESERVEMINT_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDurationOr("RESERVEMINT_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
