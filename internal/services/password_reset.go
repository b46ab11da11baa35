package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/messaging"
	"github.com/temcen/homeser/pkg/models"
)

var errResetTokenInvalid = fmt.Errorf("%w: invalid or expired reset link", ErrInvalidInput)

func resetKey(jti string) string {
	return "auth:reset:" + jti
}

// PasswordResetService runs the forgotten-password flow. A reset token is a
// signed JWT whose jti must still be present in Redis, which makes it
// single-use.
type PasswordResetService struct {
	users       *UserService
	codec       *auth.TokenCodec
	redisClient redis.Cmdable
	bus         EventPublisher
	frontendURL string
	ttl         time.Duration
	logger      *logrus.Logger
}

func NewPasswordResetService(users *UserService, codec *auth.TokenCodec, redisClient redis.Cmdable, bus EventPublisher,
	frontendURL string, ttl time.Duration, logger *logrus.Logger) *PasswordResetService {
	return &PasswordResetService{
		users:       users,
		codec:       codec,
		redisClient: redisClient,
		bus:         bus,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		ttl:         ttl,
		logger:      logger,
	}
}

// Request publishes a reset link for an active account. Unknown and
// inactive addresses succeed silently so the endpoint does not reveal which
// emails are registered.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("Password reset requested for unknown address")
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, claims, err := s.codec.IssueReset(user.ID, s.ttl)
	if err != nil {
		return err
	}
	if err := s.redisClient.Set(ctx, resetKey(claims.ID), user.ID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, messaging.EventPasswordResetRequested, user.ID, map[string]any{
		"email":      user.Email,
		"name":       user.FullName(),
		"reset_url":  s.resetURL(token),
		"expires_at": claims.ExpiresAt.Time,
	})
	s.logger.WithField("user_id", user.ID).Info("Password reset requested")
	return nil
}

func (s *PasswordResetService) resetURL(token string) string {
	return s.frontendURL + "/reset-password/" + url.PathEscape(token)
}

// Validate reports whether a token can still be used, without spending it.
func (s *PasswordResetService) Validate(ctx context.Context, token string) (*models.PasswordResetStatus, error) {
	claims, err := s.codec.ParseReset(token)
	if err != nil {
		return &models.PasswordResetStatus{}, nil
	}

	live, err := s.redisClient.Exists(ctx, resetKey(claims.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check reset token: %w", err)
	}
	if live == 0 {
		return &models.PasswordResetStatus{}, nil
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return &models.PasswordResetStatus{}, nil
		}
		return nil, err
	}
	return &models.PasswordResetStatus{Valid: true, Email: user.Email}, nil
}

// Confirm spends the token and stores the new password.
func (s *PasswordResetService) Confirm(ctx context.Context, req *models.PasswordResetConfirmRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	claims, err := s.codec.ParseReset(req.Token)
	if err != nil {
		return errResetTokenInvalid
	}

	// GETDEL makes a concurrent second confirm with the same token fail.
	owner, err := s.redisClient.GetDel(ctx, resetKey(claims.ID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errResetTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if owner != claims.UserID {
		return errResetTokenInvalid
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	s.logger.WithField("user_id", user.ID).Info("Password reset completed")
	return nil
}

func (s *PasswordResetService) activeUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errResetTokenInvalid
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, errResetTokenInvalid
	}
	return user, nil
}
