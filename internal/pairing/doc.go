// Package pairing authenticates a user's right to control a television
// and moves the device from discovered to paired.
//
// Credentials arrive as a 4-digit PIN or as a QR payload carrying the
// device ID and PIN. The Authenticator checks, in order, that the device
// exists, that it is online, that the PIN has the right shape, and only
// then asks the Verifier. Pairing an already paired device is a no-op that
// returns the existing record.
//
// Two verifiers are provided:
//
//   - SharedSecret: one PIN for every device (the reference behaviour).
//   - IssuedPIN: GeneratePIN hands out a random single-use PIN per
//     device; only its Argon2id hash is kept, until the TTL expires.
package pairing
