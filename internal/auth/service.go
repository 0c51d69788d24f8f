package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/users"
)

// UserDirectory looks up accounts for credential checks.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	dir UserDirectory
}

// NewService constructs a new Service.
func NewService(dir UserDirectory) *Service {
	return &Service{dir: dir}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
