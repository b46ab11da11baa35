package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/temcen/homeser/pkg/models"
)

var (
	ErrNoToken      = errors.New("no access token")
	ErrUserNotFound = errors.New("user not found")
)

// Identity is the per-request principal. The zero value is anonymous.
type Identity struct {
	UserID int64
	User   *models.User
}

var Anonymous = Identity{}

func (i Identity) IsAnonymous() bool {
	return i.User == nil
}

func (i Identity) IsStaff() bool {
	return i.User != nil && i.User.IsStaff
}

// UserLookup resolves a token subject. Implementations return ErrUserNotFound
// (or an error wrapping it) when the subject has no record.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type Authenticator struct {
	codec *TokenCodec
	users UserLookup
}

func NewAuthenticator(codec *TokenCodec, users UserLookup) *Authenticator {
	return &Authenticator{codec: codec, users: users}
}

// Resolve turns a raw Cookie header into an identity. Every failure is
// reported alongside Anonymous so callers can degrade without a nil check.
func (a *Authenticator) Resolve(ctx context.Context, cookieHeader string) (Identity, error) {
	token, ok := ParseCookieHeader(cookieHeader)[AccessCookieName]
	if !ok || token == "" {
		return Anonymous, ErrNoToken
	}

	userID, err := a.codec.ParseAccess(token)
	if err != nil {
		return Anonymous, err
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return Anonymous, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	if user == nil || !user.IsActive {
		return Anonymous, ErrUserNotFound
	}

	return Identity{UserID: user.ID, User: user}, nil
}
