package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/bankcards/internal/card"
)

// ErrInactiveUser marks a known user who may no longer act.
var ErrInactiveUser = errors.New("user is inactive")

// Service answers who a caller is and whether a card owner exists.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Provision adds a user to the directory.
func (s *Service) Provision(ctx context.Context, username string, role card.Role) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, errors.New("username is required")
	}
	if _, err := card.ParseRole(string(role)); err != nil {
		return User{}, err
	}
	user := User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, fmt.Errorf("create user %s: %w", username, err)
	}
	return user, nil
}

// Exists reports whether an active user has the id. It satisfies
// card.OwnerDirectory.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Active, nil
}

// Caller resolves an authenticated subject into the principal card
// operations take. The directory, not the token, decides the role.
func (s *Service) Caller(ctx context.Context, id string) (card.Caller, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return card.Caller{}, err
	}
	if !user.Active {
		return card.Caller{}, ErrInactiveUser
	}
	return card.Caller{ID: user.ID, Role: user.Role}, nil
}
