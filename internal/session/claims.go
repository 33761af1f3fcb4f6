package session

import (
	"errors"
	"time"

	"github.com/eocert/console/types"
	"github.com/golang-jwt/jwt/v5"
)

// Claims decodes the registered claims of a JWT without verifying its
// signature. The backend owns verification; the console only reads exp.
func Claims(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if token == "" {
		return claims, ErrNoSession
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return claims, err
	}
	return claims, nil
}

// Expired reports whether the session token carries an exp in the past.
// Tokens that are not JWTs, or carry no exp, never expire client-side.
func Expired(sess types.Session, now time.Time) bool {
	claims, err := Claims(sess.Token)
	if err != nil {
		return errors.Is(err, ErrNoSession)
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
