// Package auth authenticates WebSocket handshakes for solace-gateway.
//
// # Tokens
//
// Clients present an HS256 JWT signed with the configured jwt_secret. The
// "sub" claim carries the username and "exp" is mandatory. Tokens are minted
// by the operator CLI (solace-gateway token).
//
// # Validation
//
//	v := auth.NewValidator(secret, store, ttl, logger)
//	id, err := v.Validate(ctx, token)
//
// Validate always returns an *AuthError on failure:
//
//   - KindInvalid: bad signature, wrong algorithm, garbage, or unknown subject
//   - KindExpired: past its exp claim
//   - KindMalformedClaims: missing sub or exp
//   - KindPrincipalUnavailable: the user table could not be read
//
// # Passwords
//
// Users are provisioned with bcrypt hashes via HashPassword; SignIn checks a
// password with CheckPassword and mints a token.
package auth
