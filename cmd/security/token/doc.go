// Package token provides token primitives for Vox invitation links.
//
// It is the single source of truth for invitation-token generation and
// hashing behavior.
//
// Design goals:
// - Tokens are opaque, URL-safe random strings delivered to a recipient once.
// - The server stores only a hash of the token, never the plain token.
// - Default dev/back-compat mode: SHA-256(token) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(token, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - VOX_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
