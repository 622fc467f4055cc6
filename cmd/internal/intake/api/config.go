package intakeapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls intake API behavior and security defaults.
type Config struct {
	// InviteTTL is the default validity window for new invitations.
	InviteTTL time.Duration
	// InviteMaxTTL caps client-requested TTLs.
	InviteMaxTTL time.Duration

	MaxBodyBytes int64

	// AdminKey guards invitation creation and response reads.
	// Empty means those endpoints return 503 until a key is provisioned.
	AdminKey string
}

// LoadConfigFromEnv loads intake API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		InviteTTL:    envDuration("VOX_INTAKE_INVITE_TTL", 14*24*time.Hour),
		InviteMaxTTL: envDuration("VOX_INTAKE_INVITE_TTL_MAX", 90*24*time.Hour),
		MaxBodyBytes: envInt64("VOX_INTAKE_MAX_BODY_BYTES", 1<<20), // 1 MiB
		AdminKey:     strings.TrimSpace(os.Getenv("VOX_INTAKE_ADMIN_KEY")),
	}

	// Clamp TTLs to keep them sensible.
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 14 * 24 * time.Hour
	}
	if cfg.InviteMaxTTL <= 0 {
		cfg.InviteMaxTTL = 90 * 24 * time.Hour
	}
	if cfg.InviteTTL > cfg.InviteMaxTTL {
		cfg.InviteTTL = cfg.InviteMaxTTL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
