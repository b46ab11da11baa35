package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/pkg/models"
)

// AuthService handles registration, login and refresh-token rotation.
type AuthService struct {
	users       *UserService
	codec       *auth.TokenCodec
	redisClient redis.Cmdable
	logger      *logrus.Logger
	now         func() time.Time
}

func NewAuthService(users *UserService, codec *auth.TokenCodec, redisClient redis.Cmdable, logger *logrus.Logger) *AuthService {
	return &AuthService{
		users:       users,
		codec:       codec,
		redisClient: redisClient,
		logger:      logger,
		now:         time.Now,
	}
}

func revokedKey(jti string) string {
	return "auth:revoked:" + jti
}

func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, models.TokenPair, error) {
	if req.Password != req.Password2 {
		return nil, models.TokenPair{}, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.TokenPair{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(ctx, req, string(hash))
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	pair, err := s.codec.IssuePair(user.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, models.TokenPair, error) {
	user, err := s.users.GetByLogin(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, models.TokenPair{}, ErrUnauthorized
		}
		return nil, models.TokenPair{}, err
	}
	if !user.IsActive {
		return nil, models.TokenPair{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.TokenPair{}, ErrUnauthorized
	}

	pair, err := s.codec.IssuePair(user.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	return user, pair, nil
}

// Refresh verifies a refresh token, revokes it and issues a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.User, models.TokenPair, error) {
	claims, err := s.codec.ParseRefreshClaims(refreshToken)
	if err != nil {
		return nil, models.TokenPair{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	// Of two concurrent refreshes with the same token only one wins the SETNX.
	claimed, err := s.claim(ctx, claims)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to record refresh token use")
	} else if !claimed {
		return nil, models.TokenPair{}, fmt.Errorf("%w: refresh token already used", ErrUnauthorized)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, models.TokenPair{}, ErrUnauthorized
		}
		return nil, models.TokenPair{}, err
	}
	if !user.IsActive {
		return nil, models.TokenPair{}, ErrUnauthorized
	}

	pair, err := s.codec.IssuePair(user.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	return user, pair, nil
}

// Logout revokes the refresh token if one is supplied. Cookie clearing is the caller's job.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := s.codec.ParseRefreshClaims(refreshToken)
	if err != nil {
		return
	}
	if _, err := s.claim(ctx, claims); err != nil {
		// Don't fail the request if Redis is down
		s.logger.WithError(err).Warn("Failed to revoke refresh token")
	}
}

// claim marks a refresh token as spent until it would have expired anyway.
// It reports false when the token was already spent or cannot be tracked.
func (s *AuthService) claim(ctx context.Context, claims *models.JWTClaims) (bool, error) {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return false, nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}
	return s.redisClient.SetNX(ctx, revokedKey(claims.ID), 1, ttl).Result()
}

func (s *AuthService) AccessTTL() time.Duration  { return s.codec.AccessTTL() }
func (s *AuthService) RefreshTTL() time.Duration { return s.codec.RefreshTTL() }
