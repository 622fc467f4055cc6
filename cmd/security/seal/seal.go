package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// envelopePrefix tags encrypted values at rest.
	envelopePrefix = "enc.v1."

	// MinSecretBytes is the minimum accepted secret length.
	// The AEAD key is derived via SHA-256, but a short secret would make the
	// derivation pointless.
	MinSecretBytes = 16
)

// Codec encrypts and decrypts individual answer values.
//
// The codec is pure computation: it never suspends, never logs, and holds no
// mutable state. It is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a ChaCha20-Poly1305 key from secret (SHA-256) and returns
// a ready codec. The secret is not retained.
func NewCodec(secret string) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretMissing
	}
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}

	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// EncryptValue returns the at-rest representation of an answer value.
// Non-sensitive values pass through unchanged; sensitive values are sealed
// under a fresh random nonce, so repeated calls yield different ciphertexts.
func (c *Codec) EncryptValue(plaintext string, sensitive bool) (string, error) {
	if !sensitive {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptValue is the inverse of EncryptValue.
// Any failure to open a sensitive value is reported as ErrDecrypt.
func (c *Codec) DecryptValue(stored string, sensitive bool) (string, error) {
	if !sensitive {
		return stored, nil
	}

	raw, ok := strings.CutPrefix(stored, envelopePrefix)
	if !ok {
		return "", fmt.Errorf("%w: missing envelope prefix", ErrDecrypt)
	}

	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecrypt)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: truncated ciphertext", ErrDecrypt)
	}

	nonce, ct := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// Sealed reports whether a stored value carries the encryption envelope.
func Sealed(stored string) bool {
	return strings.HasPrefix(stored, envelopePrefix)
}
