package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

var (
	// ErrDuplicateUsername is returned when registering an already-taken username.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateEmail is returned when registering an already-taken email.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrInvalidCredentials covers both unknown username and wrong password,
	// so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but is disabled.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrNotFound indicates no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrAuthUnavailable indicates a remote verification dependency failed.
	ErrAuthUnavailable = errors.New("authentication service unavailable")
	// ErrInternal covers unexpected persistence or hashing faults. The
	// underlying cause is logged, never returned to callers.
	ErrInternal = errors.New("internal authentication error")
)

// DefaultRole is granted to every freshly registered user.
const DefaultRole = "USER"

// AuthService describes principal lifecycle and verification operations.
type AuthService interface {
	Register(ctx context.Context, username, email, password, firstName, lastName string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
	AssignRole(ctx context.Context, id int64, role string) (*domain.User, error)
	RemoveRole(ctx context.Context, id int64, role string) (*domain.User, error)
}

type authService struct {
	users  repository.UserRepository
	logger *logrus.Logger
	cost   int
}

func NewAuthService(users repository.UserRepository, logger *logrus.Logger) AuthService {
	return &authService{
		users:  users,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
}

// Register creates a new user with all status flags set and the default
// role. Duplicates are pre-checked, but the store's uniqueness constraints
// remain the final arbiter under concurrent identical registrations.
func (s *authService) Register(ctx context.Context, username, email, password, firstName, lastName string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)

	if username == "" {
		return nil, errors.New("username is required")
	}
	if email == "" {
		return nil, errors.New("email is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	if taken, err := s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, s.internal("check username", err)
	} else if taken {
		return nil, ErrDuplicateUsername
	}
	if taken, err := s.users.ExistsByEmail(ctx, email); err != nil {
		return nil, s.internal("check email", err)
	} else if taken {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, s.internal("hash password", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		Username:              username,
		Email:                 email,
		PasswordHash:          string(hash),
		FirstName:             strings.TrimSpace(firstName),
		LastName:              strings.TrimSpace(lastName),
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		Roles:                 []string{DefaultRole},
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrDuplicateUsername
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		default:
			return nil, s.internal("save user", err)
		}
	}

	s.logger.WithField("username", username).Info("user registered")
	return sanitizeUser(saved), nil
}

// Authenticate verifies a username/password pair. Unknown usernames and
// wrong passwords yield the identical error.
func (s *authService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, s.internal("find user", err)
	}

	if !user.Enabled {
		return nil, ErrAccountDisabled
	}

	// bcrypt comparison is constant-time with respect to the digest.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *authService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.internal("find user", err)
	}
	return sanitizeUser(user), nil
}

func (s *authService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.internal("find user", err)
	}
	return sanitizeUser(user), nil
}

func (s *authService) ListAll(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, s.internal("list users", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// AssignRole adds a role to the user's set. Assigning an already-held role
// is a no-op, not an error.
func (s *authService) AssignRole(ctx context.Context, id int64, role string) (*domain.User, error) {
	return s.mutateRoles(ctx, id, func(user *domain.User) {
		user.AddRole(role)
	})
}

// RemoveRole drops a role from the user's set. Removing an absent role is a
// no-op, not an error.
func (s *authService) RemoveRole(ctx context.Context, id int64, role string) (*domain.User, error) {
	return s.mutateRoles(ctx, id, func(user *domain.User) {
		user.RemoveRole(role)
	})
}

func (s *authService) mutateRoles(ctx context.Context, id int64, mutate func(*domain.User)) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.internal("find user", err)
	}

	mutate(user)
	user.UpdatedAt = time.Now().UTC()

	saved, err := s.users.Save(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.internal("save user", err)
	}
	return sanitizeUser(saved), nil
}

// internal logs the diagnostic and returns the opaque internal error.
func (s *authService) internal(op string, err error) error {
	s.logger.WithError(err).Errorf("auth service: %s", op)
	return ErrInternal
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	cleaned := user.Clone()
	cleaned.PasswordHash = ""
	return cleaned
}
