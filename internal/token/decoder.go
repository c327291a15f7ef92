// Package token extracts the role claim from an access token.
//
// SECURITY NOTE: the claim is decoded WITHOUT verifying
// the token signature. This mirrors what a browser client does with its own
// token: the issuing authority already vouched for it, and the gateway only
// needs the role to pick a landing page and a display mode. The decoded
// value MUST NEVER be used for an authorization decision; every privileged
// call goes to the backend carrying the raw token, and the backend verifies
// it server-side. Treat DecodeRole output as a routing hint, nothing more.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// ErrMalformedToken indicates the access token could not be parsed into its
// claim structure, or the role claim is missing or outside the known set.
// This is fatal to the current bootstrap attempt and is never retried: a
// token that does not decode now will not decode later.
var ErrMalformedToken = errors.New("malformed access token")

// roleClaims is the minimal claim set the gateway reads. Everything else in
// the token is opaque to us.
type roleClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeRole extracts the role claim from accessToken. Pure and synchronous;
// no network, no signature verification (see the package note).
//
// Returns ErrMalformedToken if the token cannot be parsed or the embedded
// role is not one of the known values.
func DecodeRole(accessToken string) (domain.RoleClaim, error) {
	var claims roleClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return "", ErrMalformedToken
	}
	role := domain.RoleClaim(claims.Role)
	if !role.Valid() {
		return "", ErrMalformedToken
	}
	return role, nil
}
