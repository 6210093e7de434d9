// Package auth is the authentication boundary of the device sync core.
//
// Every device operation runs on behalf of one user. The HTTP layer turns a
// Bearer token into an Identity with Authenticator.Authenticate and stores
// it in the request context; services read it back with
// ResolveCurrentUser. A context without an identity yields
// ErrUnauthenticated.
//
// Tokens are HS256 JWTs whose subject is the user ID. Accounts and sign-in
// live outside this service; IssueToken exists for operators and tests.
package auth
