// Package seal provides field-level encryption for sensitive answer values.
//
// It is the single source of truth for the at-rest answer format.
//
// Design goals:
// - One process-wide symmetric key, loaded once at startup, immutable afterwards.
// - Randomized encryption: a fresh nonce per call, so equal plaintexts never
//   produce equal ciphertexts.
// - A versioned envelope ("enc.v1.") so stored values are self-describing and
//   future key/algorithm rotation stays possible.
// - Decryption failures are surfaced as ErrDecrypt, never swallowed: a
//   malformed envelope or key mismatch is a data-integrity incident.
//
// Environment:
// - VOX_ANSWERS_SECRET: the secret the key is derived from. Absence is a
//   startup-fatal configuration error (see app.ValidateSecurityConfig).
package seal
