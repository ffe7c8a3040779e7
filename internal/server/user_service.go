package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/config"
	"github.com/jonathan/purchase-tracker/internal/db"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// UserStore is the account storage the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*db.User, error)
	BootstrapAdmin(ctx context.Context, username, passwordHash string) (*db.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByUsername(ctx context.Context, username string) (*db.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ListUsers(ctx context.Context) ([]db.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// UserService provides business logic for user authentication operations
type UserService struct {
	store          UserStore
	passwordConfig *config.PasswordConfig
}

// NewUserService creates a new UserService with the given dependencies
func NewUserService(store UserStore, passwordConfig *config.PasswordConfig) *UserService {
	return &UserService{
		store:          store,
		passwordConfig: passwordConfig,
	}
}

// toAPIUser converts db.User to types.User, excluding the password hash.
func toAPIUser(u *db.User) *types.User {
	if u == nil {
		return nil
	}
	return &types.User{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// Register creates the first account, which becomes the admin. Later
// accounts are created by an admin.
func (s *UserService) Register(ctx context.Context, req *types.CreateUserRequest) (*types.User, error) {
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.BootstrapAdmin(ctx, req.Username, hash)
	if err != nil {
		if errors.Is(err, db.ErrRegistrationClosed) {
			return nil, &ErrForbidden{Reason: "registration is closed; ask an admin for an account"}
		}
		if errors.Is(err, db.ErrUsernameTaken) {
			return nil, &ErrUsernameTaken{Username: req.Username}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return toAPIUser(user), nil
}

// CreateUser adds an account on an admin's behalf.
func (s *UserService) CreateUser(ctx context.Context, req *types.AdminCreateUserRequest) (*types.User, error) {
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, req.Username, hash, req.IsAdmin)
	if err != nil {
		if errors.Is(err, db.ErrUsernameTaken) {
			return nil, &ErrUsernameTaken{Username: req.Username}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return toAPIUser(user), nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]types.User, 0, len(users))
	for i := range users {
		out = append(out, *toAPIUser(&users[i]))
	}
	return out, nil
}

// ResetPassword sets a user's password without the current one.
func (s *UserService) ResetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return &ErrNotFound{Resource: "user"}
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return nil
}

// Delete removes an account and everything it owns. Admins cannot delete
// themselves, so at least one admin always remains.
func (s *UserService) Delete(ctx context.Context, actorID, userID uuid.UUID) error {
	if actorID == userID {
		return &ErrValidation{Field: "id", Message: "cannot delete your own account"}
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return &ErrNotFound{Resource: "user"}
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	hash, err := s.passwordConfig.HashPassword(password)
	if err != nil {
		if errors.Is(err, config.ErrPasswordTooShort) {
			return "", &ErrValidation{Field: "password", Message: err.Error()}
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// Login authenticates a user and returns user data
func (s *UserService) Login(ctx context.Context, req *types.LoginRequest) (*types.User, error) {
	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	// Same error for unknown user and wrong password
	if user == nil || !s.passwordConfig.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}
	return toAPIUser(user), nil
}

// Get returns the current state of a user.
func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, &ErrNotFound{Resource: "user"}
	}
	return toAPIUser(user), nil
}

// UpdatePassword updates a user's password
func (s *UserService) UpdatePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return &ErrNotFound{Resource: "user"}
	}

	if !s.passwordConfig.VerifyPassword(currentPassword, user.PasswordHash) {
		return &ErrPasswordMismatch{}
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
