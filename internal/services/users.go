package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/pkg/models"
)

const userColumns = `id, email, username, first_name, last_name, password_hash, is_staff, is_active,
	phone, address, bio, last_login, date_joined`

type UserService struct {
	db     DB
	logger *logrus.Logger
}

func NewUserService(db DB, logger *logrus.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsStaff, &u.IsActive, &u.Phone, &u.Address, &u.Bio, &u.LastLogin, &u.DateJoined,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, auth.ErrUserNotFound)
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a user with an already hashed password.
func (s *UserService) Create(ctx context.Context, req *models.RegisterRequest, passwordHash string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (email, username, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(req.Email)),
		strings.TrimSpace(req.Username),
		strings.TrimSpace(req.FirstName),
		strings.TrimSpace(req.LastName),
		passwordHash,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email or username already registered", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByLogin accepts either an email address or a username.
func (s *UserService) GetByLogin(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.GetByEmail(ctx, identifier)
	}
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, identifier))
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// SetPassword stores an already hashed password.
func (s *UserService) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return nil
}

func (s *UserService) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return err
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, req *models.ProfileUpdateRequest) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			phone      = COALESCE($4, phone),
			address    = COALESCE($5, address),
			bio        = COALESCE($6, bio)
		WHERE id = $1
		RETURNING `+userColumns,
		id, req.FirstName, req.LastName, req.Phone, req.Address, req.Bio,
	)
	return scanUser(row)
}

func (s *UserService) List(ctx context.Context, page, pageSize int) (models.Page[models.User], error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY date_joined DESC, id DESC LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return models.Page[models.User]{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, pageSize)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return models.Page[models.User]{}, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.User]{}, err
	}

	return models.NewPage(users, total, page, pageSize), nil
}

// Promote grants staff rights.
func (s *UserService) Promote(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx,
		`UPDATE users SET is_staff = TRUE WHERE id = $1 RETURNING `+userColumns, id))
	if err != nil {
		return nil, err
	}
	s.logger.WithField("user_id", id).Info("User promoted to staff")
	return user, nil
}

// CountActiveSince counts users who logged in after since.
func (s *UserService) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE is_active AND last_login >= $1`, since).Scan(&n)
	return n, err
}
