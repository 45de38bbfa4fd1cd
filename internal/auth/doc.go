// Package auth issues and verifies operator tokens for the control API.
//
// When api.control_secret is set, POST /api/v1/control/{command} requires
// an HS256 JWT signed with that secret and carrying the "control" scope.
// The token's subject names the operator and is logged with every command.
// Tokens are minted offline with the rx380token command:
//
//	rx380token -operator alice -ttl 720h
//
// There are no user accounts or refresh tokens; rotating the secret revokes
// every issued token.
package auth
