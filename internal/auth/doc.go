// Package auth holds the credential primitives used at the edges of
// RemoteLink Core.
//
//   - Entitlement tokens: HS256 JWTs issued by the external billing
//     service. Pairing and control routes require Claims.Entitled when
//     security.entitlement.required is set.
//   - Pairing secrets: Argon2id PHC hashing for issued PINs, plus a
//     uniform random 4-digit PIN generator.
package auth
