// Package auth authenticates administrative callers.
//
// An Authenticator turns a presented credential into a Principal. The package
// ships a static API key authenticator (plaintext or bcrypt hash) and an
// HS256 JWT authenticator; AnyOf combines them so a deployment can accept
// either form. Only the HTTP layer uses this package.
package auth
