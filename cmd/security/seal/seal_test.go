package seal

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCodec_RejectsMissingOrShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec(""); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("empty secret: got %v, want ErrSecretMissing", err)
	}
	if _, err := NewCodec("   "); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("blank secret: got %v, want ErrSecretMissing", err)
	}
	if _, err := NewCodec("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("short secret: got %v, want ErrSecretTooShort", err)
	}
}

func TestEncryptValue_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	for _, plain := range []string{"", "red", "a much longer answer with spaces and ünïcödé"} {
		stored, err := c.EncryptValue(plain, true)
		if err != nil {
			t.Fatalf("EncryptValue(%q): %v", plain, err)
		}
		if !Sealed(stored) {
			t.Fatalf("sensitive value not sealed: %q", stored)
		}
		if plain != "" && strings.Contains(stored, plain) {
			t.Fatalf("ciphertext leaks plaintext: %q", stored)
		}

		got, err := c.DecryptValue(stored, true)
		if err != nil {
			t.Fatalf("DecryptValue: %v", err)
		}
		if got != plain {
			t.Fatalf("round trip: got %q want %q", got, plain)
		}
	}
}

func TestEncryptValue_NonSensitivePassthrough(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	stored, err := c.EncryptValue("blue", false)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if stored != "blue" {
		t.Fatalf("non-sensitive value must pass through, got %q", stored)
	}

	got, err := c.DecryptValue(stored, false)
	if err != nil || got != "blue" {
		t.Fatalf("DecryptValue: got %q, %v", got, err)
	}
}

func TestEncryptValue_Randomized(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	a, err := c.EncryptValue("same plaintext", true)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	b, err := c.EncryptValue("same plaintext", true)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if a == b {
		t.Fatalf("repeated encryption produced identical ciphertext")
	}

	for _, stored := range []string{a, b} {
		got, err := c.DecryptValue(stored, true)
		if err != nil || got != "same plaintext" {
			t.Fatalf("round trip: got %q, %v", got, err)
		}
	}
}

func TestDecryptValue_MalformedAndWrongKey(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	for _, stored := range []string{
		"plaintext-without-envelope",
		"enc.v1.!!!not-base64!!!",
		"enc.v1.c2hvcnQ", // valid base64, shorter than a nonce
	} {
		if _, err := c.DecryptValue(stored, true); !errors.Is(err, ErrDecrypt) {
			t.Fatalf("DecryptValue(%q): got %v, want ErrDecrypt", stored, err)
		}
	}

	// Tampered ciphertext.
	stored, err := c.EncryptValue("secret answer", true)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	tampered := stored[:len(stored)-2] + "AA"
	if tampered == stored {
		tampered = stored[:len(stored)-2] + "BB"
	}
	if _, err := c.DecryptValue(tampered, true); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("tampered: got %v, want ErrDecrypt", err)
	}

	// Rotated secret: same envelope, different key.
	other, err := NewCodec("another-secret-9876543210")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := other.DecryptValue(stored, true); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("wrong key: got %v, want ErrDecrypt", err)
	}
}
