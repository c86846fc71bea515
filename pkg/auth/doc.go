// Package auth protects the management API (/api/*) with pluggable
// authenticators. The completion endpoints are never authenticated.
//
// Authenticators form a chain with three-outcome voting: each returns Yes
// (identity found), No (credentials invalid), or Abstain (can't handle). A
// configurable default decides when all authenticators abstain.
package auth
