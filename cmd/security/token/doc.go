// Package token issues and verifies the two kinds of credentials huddle hands out.
//
// Session tokens carry a participant's identity inside one session
// (session code, participant id, host flag). They are PASETO v4.public tokens
// signed with an Ed25519 key and expire after a fixed window.
//
// Resource tokens authorize indirect fetches of external binary resources
// (candidate photos). They are a deterministic HMAC-SHA256 of the resource
// name under a key derived with HKDF, compared in constant time, so the photo
// proxy never needs to expose upstream credentials to clients.
//
// Both capabilities sit behind Service so signing schemes can change without
// touching callers.
//
// Environment:
//   - HUDDLE_TOKEN_SECRET_KEY_HEX: Ed25519 secret key (hex). Generated per process when empty.
//   - HUDDLE_RESOURCE_SECRET: resource-token master secret. Generated per process when empty.
package token
