package app

import (
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// AnswersSecret keys the answer-sealing codec and is REQUIRED at startup.
	// If RequireTokenHMAC is true, VOX_TOKEN_HMAC_KEY MUST be set (>= 32 bytes)
	// and invitation-token hashing must be HMAC-based.
	AnswersSecret    string
	RequireTokenHMAC bool

	// SweepInterval drives the background invitation expiry sweeper.
	SweepInterval time.Duration

	// SeedDemo loads a demo survey into the in-memory catalog when no DB is
	// configured, so the full flow works out of the box in dev.
	SeedDemo bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VOX_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("VOX_LOG_LEVEL", "info"),
		LogFormat: EnvString("VOX_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VOX_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VOX_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("VOX_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("VOX_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("VOX_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("VOX_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("VOX_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("VOX_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("VOX_DB_SCHEMA", "vox"),

		ReadinessRequireDB: EnvBool("VOX_READINESS_REQUIRE_DB", false),

		AnswersSecret:    EnvString("VOX_ANSWERS_SECRET", ""),
		RequireTokenHMAC: EnvBool("VOX_REQUIRE_TOKEN_HMAC", false),

		SweepInterval: EnvDuration("VOX_SWEEP_INTERVAL", time.Hour),
		SeedDemo:      EnvBool("VOX_SEED_DEMO", true),

		CORSAllowedOrigins:   splitCSV(EnvString("VOX_CORS_ALLOWED_ORIGINS", "")),
		CORSAllowCredentials: EnvBool("VOX_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("VOX_CORS_MAX_AGE_SECONDS", 600),
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
