package seal

import "errors"

var (
	// ErrSecretMissing is returned when the codec is constructed without a secret.
	ErrSecretMissing = errors.New("answers secret missing")

	// ErrSecretTooShort is returned when the configured secret is below the minimum length.
	ErrSecretTooShort = errors.New("answers secret too short")

	// ErrDecrypt is returned when a stored value cannot be decrypted: the
	// envelope is malformed, truncated, or the key does not match (e.g. a
	// rotated secret). Callers must log and surface it, never treat it as
	// missing data.
	ErrDecrypt = errors.New("decrypt failed")
)
