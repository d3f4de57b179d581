// Package auth provides authentication and authorisation for the Bulles portal.
//
// It implements a 2-tier role model (student → admin) with:
//   - Argon2id password hashing, with bcrypt hashes accepted for imported rosters
//   - HS256 access and refresh tokens under distinct secrets
//   - Inclusive expiry: a token whose exp equals now is expired
//   - Static role-permission mapping (compile-time, no database lookup)
//   - An in-memory registry of live sessions and an optional SQLite denylist
//
// Logout is stateless unless a RevocationStore is configured: without one,
// a token stays valid until it expires.
package auth
