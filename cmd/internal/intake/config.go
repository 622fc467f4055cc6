package intake

import "time"

// Config tunes service behavior. Zero values are normalized to safe defaults.
type Config struct {
	// TokenBytes is the entropy of freshly issued invitation tokens.
	TokenBytes int

	// DefaultInvitationTTL applies when an invitation is created without an
	// explicit TTL.
	DefaultInvitationTTL time.Duration

	// MaxAnswersPerSave caps the number of keys accepted in one autosave.
	MaxAnswersPerSave int
}

// Normalize fills defaults in place and returns the config.
func (c Config) Normalize() Config {
	if c.TokenBytes <= 0 {
		c.TokenBytes = 32
	}
	if c.DefaultInvitationTTL <= 0 {
		c.DefaultInvitationTTL = 14 * 24 * time.Hour
	}
	if c.MaxAnswersPerSave <= 0 {
		c.MaxAnswersPerSave = 200
	}
	return c
}
