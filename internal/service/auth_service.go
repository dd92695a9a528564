package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/pkg/jwt"
)

const minPasswordLen = 4

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResponse, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	ResetPassword(ctx context.Context, username, newPassword string) error
}

type LoginResponse struct {
	Token string             `json:"token"`
	User  model.UserResponse `json:"user"`
}

type authService struct {
	userRepo repository.UserRepository
	tokens   *jwt.Manager
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, tokens *jwt.Manager, logger *slog.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	username = strings.TrimSpace(username)
	var msgs []string
	if username == "" {
		msgs = append(msgs, "username is required")
	}
	if password == "" {
		msgs = append(msgs, "password is required")
	}
	if len(msgs) > 0 {
		return nil, invalid(msgs...)
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if !user.CheckPassword(password) {
		s.logger.Warn("login failed", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	// Single session: a new login invalidates earlier tokens.
	version := uuid.NewString()
	now := s.now().UTC()
	if err := s.userRepo.UpdateSession(ctx, user.ID, version, now); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	user.TokenVersion = version
	user.LastLoginAt = &now

	token, err := s.tokens.GenerateToken(user.ID, user.Username, string(user.Role), version)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info("login", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", string(user.Role)))
	return &LoginResponse{Token: token, User: user.ToResponse()}, nil
}

// Authenticate resolves a bearer token to a live, active account.
func (s *authService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuth, err.Error())
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionExpired
	}
	return user, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return notFound(err, ErrUserNotFound)
	}
	if !user.CheckPassword(oldPassword) {
		return ErrWrongPassword
	}
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, user.ID, user.PasswordHash, false)
}

// ResetPassword is the operator escape hatch: it sets a new password, forces a change on
// next login and signs the account out everywhere.
func (s *authService) ResetPassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return notFound(err, ErrUserNotFound)
	}
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, user.PasswordHash, true); err != nil {
		return err
	}
	return s.userRepo.UpdateTokenVersion(ctx, user.ID, uuid.NewString())
}
