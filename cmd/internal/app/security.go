package app

import (
	"errors"
	"strings"

	"vox/cmd/security/seal"
	"vox/cmd/security/token"
)

// ValidateSecurityConfig enforces Vox's security policy at startup.
//
// Fail-fast is intentional: silently running without answer encryption, or
// falling back to weaker token hashing under policy, is unacceptable.
func ValidateSecurityConfig(cfg Config) error {
	// The answer-sealing secret is mandatory in every mode, including the
	// in-memory dev store: responses always carry encrypted values.
	secret := strings.TrimSpace(cfg.AnswersSecret)
	if secret == "" {
		return errors.New("security policy: VOX_ANSWERS_SECRET is missing")
	}
	if len(secret) < seal.MinSecretBytes {
		return errors.New("security policy: VOX_ANSWERS_SECRET is too short (min 16 bytes)")
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured as raw bytes.
	// Enforcement goes through the same module that performs hashing.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: VOX_REQUIRE_TOKEN_HMAC=true but VOX_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: VOX_REQUIRE_TOKEN_HMAC=true but VOX_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: VOX_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
