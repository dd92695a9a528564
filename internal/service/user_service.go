package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/pkg/validator"
)

type UserService interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	GetUserByID(ctx context.Context, id uint) (*model.User, error)
	SetUserRole(ctx context.Context, actorID, targetID uint, role model.Role) (*model.User, error)
	SetUserActive(ctx context.Context, actorID, targetID uint, active bool) (*model.User, error)
	EnsureSeedAdmin(ctx context.Context, username, password string) (bool, error)
}

type CreateUserRequest struct {
	Username string     `json:"username" validate:"required,min=3,max=64"`
	Password string     `json:"password" validate:"required,min=4"`
	Role     model.Role `json:"role" validate:"required"`
}

type userService struct {
	db       *gorm.DB
	userRepo repository.UserRepository
	logger   *slog.Logger
}

func NewUserService(db *gorm.DB, userRepo repository.UserRepository, logger *slog.Logger) UserService {
	return &userService{
		db:       db,
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *userService) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)

	var msgs []string
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		msgs = append(msgs, validator.Messages(errs)...)
	}
	if req.Role != "" && !req.Role.Valid() {
		msgs = append(msgs, fmt.Sprintf("role must be %s or %s", model.RoleAdmin, model.RoleStaff))
	}
	if len(msgs) > 0 {
		return nil, invalid(msgs...)
	}

	_, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := &model.User{
		Username:     req.Username,
		Role:         req.Role,
		IsActive:     true,
		TokenVersion: uuid.NewString(),
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.logger.Info("user created", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", string(user.Role)))
	return user, nil
}

func (s *userService) GetAllUsers(ctx context.Context) ([]model.User, error) {
	return s.userRepo.FindAll(ctx)
}

func (s *userService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// SetUserRole changes a role. An account may not take the admin role away from itself.
func (s *userService) SetUserRole(ctx context.Context, actorID, targetID uint, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, invalid(fmt.Sprintf("role must be %s or %s", model.RoleAdmin, model.RoleStaff))
	}

	var updated *model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)
		target, err := s.lockActorAndTarget(ctx, users, actorID, targetID)
		if err != nil {
			return err
		}
		if actorID == targetID && role != model.RoleAdmin {
			return ErrSelfDemotion
		}
		if err := users.UpdateRole(ctx, target.ID, role); err != nil {
			return err
		}
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed",
		slog.Uint64("actor_id", uint64(actorID)),
		slog.Uint64("user_id", uint64(targetID)),
		slog.String("role", string(role)))
	return updated, nil
}

// SetUserActive toggles an account. An account may not deactivate itself.
// Deactivation also revokes the target's session.
func (s *userService) SetUserActive(ctx context.Context, actorID, targetID uint, active bool) (*model.User, error) {
	var updated *model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)
		target, err := s.lockActorAndTarget(ctx, users, actorID, targetID)
		if err != nil {
			return err
		}
		if actorID == targetID && !active {
			return ErrSelfDeactivation
		}
		if err := users.UpdateActive(ctx, target.ID, active); err != nil {
			return err
		}
		if !active {
			if err := users.UpdateTokenVersion(ctx, target.ID, uuid.NewString()); err != nil {
				return err
			}
		}
		target.IsActive = active
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user active flag changed",
		slog.Uint64("actor_id", uint64(actorID)),
		slog.Uint64("user_id", uint64(targetID)),
		slog.Bool("active", active))
	return updated, nil
}

// lockActorAndTarget re-reads both accounts inside the caller's transaction.
func (s *userService) lockActorAndTarget(ctx context.Context, users repository.UserRepository, actorID, targetID uint) (*model.User, error) {
	if actorID == 0 || targetID == 0 {
		return nil, invalid("actor and target user are required")
	}
	actor, err := users.LockByID(ctx, actorID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	if !actor.IsActive {
		return nil, ErrUserInactive
	}
	if actorID == targetID {
		return actor, nil
	}
	target, err := users.LockByID(ctx, targetID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return target, nil
}

// EnsureSeedAdmin creates the first admin account when no users exist yet.
func (s *userService) EnsureSeedAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	admin := &model.User{
		Username:           username,
		Role:               model.RoleAdmin,
		IsActive:           true,
		MustChangePassword: true,
		TokenVersion:       uuid.NewString(),
	}
	if err := admin.SetPassword(password); err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return false, err
	}
	s.logger.Warn("seed admin created, change its password", slog.String("username", username))
	return true, nil
}
