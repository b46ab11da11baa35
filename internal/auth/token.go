package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/temcen/homeser/pkg/models"
)

const issuer = "github.com/temcen/homeser"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TokenCodec issues and verifies HS256 session tokens.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssuePair(userID int64) (models.TokenPair, error) {
	now := c.now()

	access, accessClaims, err := c.sign(userID, models.TokenTypeAccess, now, c.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, refreshClaims, err := c.sign(userID, models.TokenTypeRefresh, now, c.refreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (c *TokenCodec) ParseAccess(token string) (int64, error) {
	claims, err := c.parse(token, models.TokenTypeAccess)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// ParseRefreshClaims exposes the token id and expiry needed to revoke a rotated token.
func (c *TokenCodec) ParseRefreshClaims(token string) (*models.JWTClaims, error) {
	return c.parse(token, models.TokenTypeRefresh)
}

// IssueReset signs a password-reset token. The caller keeps the returned
// jti to make the token single-use.
func (c *TokenCodec) IssueReset(userID int64, ttl time.Duration) (string, *models.JWTClaims, error) {
	if ttl <= 0 {
		return "", nil, errors.New("reset token lifetime must be positive")
	}
	return c.sign(userID, models.TokenTypeReset, c.now(), ttl)
}

func (c *TokenCodec) ParseReset(token string) (*models.JWTClaims, error) {
	return c.parse(token, models.TokenTypeReset)
}

func (c *TokenCodec) sign(userID int64, tokenType string, now time.Time, ttl time.Duration) (string, *models.JWTClaims, error) {
	expiresAt := now.Add(ttl)
	claims := &models.JWTClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

func (c *TokenCodec) parse(tokenString, wantType string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
