// Package session keeps the bearer token and cached user profile between
// runs of the console.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/eocert/console/types"
)

// ErrNoSession is returned by Load when nothing has been stored.
var ErrNoSession = errors.New("no stored session")

// Store persists the authenticated session. Token and User are written and
// cleared together except through SetToken, which keeps any cached user.
type Store interface {
	Load(ctx context.Context) (types.Session, error)
	Save(ctx context.Context, sess types.Session) error
	SetToken(ctx context.Context, token string) error
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// TokenOf reads the token from store, mapping a missing session to "".
func TokenOf(ctx context.Context, store Store) (string, error) {
	token, err := store.Token(ctx)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	return strings.TrimSpace(token), err
}
