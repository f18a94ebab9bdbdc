// Package identity provides credential authentication and dual-token session
// renewal: bcrypt-backed password verification, paired short-lived access and
// long-lived refresh JWTs signed with independent secrets, single-slot refresh
// rotation backed by a hashed fingerprint column, and route guards for public,
// authenticated, and role-gated operations.
//
// Token lifecycle:
//   - SignUp, SignIn, and Refresh each mint a TokenPair. Only the refresh
//     token's fingerprint (a one-way hash) is ever persisted, so a storage
//     compromise does not yield redeemable credentials.
//   - A refresh token is redeemable exactly once. Redemption rotates the
//     stored fingerprint via a conditional update, so a replayed or stale
//     token is denied even when two redemptions race.
//   - Logout clears the fingerprint and is idempotent.
//
// Route guarding:
//   - RouteDescriptor declares, per operation, whether it is public, which
//     roles may call it, and which token kind authenticates it. The refresh
//     endpoint is the only one validated against the refresh secret; every
//     other protected route uses the access secret.
//   - middleware/jwtware performs extraction, validation, and role checks,
//     then attaches verified claims (and, for the refresh path, the raw
//     bearer string) to the request context.
//
// Claims decoration:
//   - ClaimsDecorator runs before a token is signed and may enrich extension
//     fields such as Metadata. Identity claims (sub, email, role, iss, aud,
//     iat, exp) are snapshotted and any mutation aborts issuance.
package identity
