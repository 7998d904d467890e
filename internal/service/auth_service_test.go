package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

// memRepo is an in-memory UserRepository. It enforces username/email
// uniqueness on Save, acting as the final arbiter the way a real store
// with unique constraints does.
type memRepo struct {
	users  map[int64]*domain.User
	nextID int64

	saveErr    error
	findErr    error
	skipChecks bool
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]*domain.User)}
}

func (r *memRepo) Init(context.Context) error { return nil }

func (r *memRepo) Save(_ context.Context, user *domain.User) (*domain.User, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if existing.Username == user.Username {
			return nil, repository.ErrDuplicateUsername
		}
		if existing.Email == user.Email {
			return nil, repository.ErrDuplicateEmail
		}
	}
	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID
	}
	r.users[user.ID] = user.Clone()
	return user.Clone(), nil
}

func (r *memRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, user := range r.users {
		if user.Username == username {
			return user.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, user := range r.users {
		if user.Email == email {
			return user.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if user, ok := r.users[id]; ok {
		return user.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) FindAll(context.Context) ([]domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var all []domain.User
	for _, user := range r.users {
		all = append(all, *user.Clone())
	}
	return all, nil
}

func (r *memRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if r.skipChecks {
		return false, nil
	}
	_, err := r.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if r.skipChecks {
		return false, nil
	}
	_, err := r.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newService(t *testing.T) (AuthService, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewAuthService(repo, testLogger()), repo
}

func registerAlice(t *testing.T, svc AuthService) *domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), "alice", "alice@x.com", "password1", "Alice", "A")
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	svc, repo := newService(t)

	user := registerAlice(t, svc)
	require.NotZero(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@x.com", user.Email)
	require.Equal(t, []string{"USER"}, user.Roles)
	require.True(t, user.Enabled)
	require.True(t, user.AccountNonExpired)
	require.True(t, user.AccountNonLocked)
	require.True(t, user.CredentialsNonExpired)
	require.Empty(t, user.PasswordHash, "digest must not leave the engine")

	stored := repo.users[user.ID]
	require.NotEmpty(t, stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password1")))
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _ := newService(t)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), "alice", "other@x.com", "password1", "", "")
	require.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Register(context.Background(), "bob", "alice@x.com", "password1", "", "")
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterStoreIsFinalArbiter(t *testing.T) {
	// Simulates the concurrent-registration race: the pre-checks see no
	// duplicate, but the store's uniqueness constraint still fires.
	repo := newMemRepo()
	svc := NewAuthService(repo, testLogger())

	_, err := svc.Register(context.Background(), "alice", "alice@x.com", "password1", "", "")
	require.NoError(t, err)

	repo.skipChecks = true
	_, err = svc.Register(context.Background(), "alice", "new@x.com", "password1", "", "")
	require.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Register(context.Background(), "carol", "alice@x.com", "password1", "", "")
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterPersistenceFault(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk on fire")
	svc := NewAuthService(repo, testLogger())

	_, err := svc.Register(context.Background(), "alice", "alice@x.com", "password1", "", "")
	require.ErrorIs(t, err, ErrInternal)
	require.NotContains(t, err.Error(), "disk", "cause must not leak to callers")
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	registerAlice(t, svc)

	user, err := svc.Authenticate(context.Background(), "alice", "password1")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Empty(t, user.PasswordHash)

	_, err = svc.Authenticate(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateNoExistenceDisclosure(t *testing.T) {
	svc, _ := newService(t)
	registerAlice(t, svc)

	_, ghostErr := svc.Authenticate(context.Background(), "ghost", "x")
	_, wrongErr := svc.Authenticate(context.Background(), "alice", "wrong-password")
	require.ErrorIs(t, ghostErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	require.Equal(t, ghostErr, wrongErr)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	svc, repo := newService(t)
	user := registerAlice(t, svc)

	repo.users[user.ID].Enabled = false
	_, err := svc.Authenticate(context.Background(), "alice", "password1")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRoleMutation(t *testing.T) {
	svc, _ := newService(t)
	user := registerAlice(t, svc)

	updated, err := svc.AssignRole(context.Background(), user.ID, "admin")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"USER", "ADMIN"}, updated.Roles)

	// assigning an already-held role is a no-op
	again, err := svc.AssignRole(context.Background(), user.ID, "ADMIN")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"USER", "ADMIN"}, again.Roles)

	updated, err = svc.RemoveRole(context.Background(), user.ID, "user")
	require.NoError(t, err)
	require.Equal(t, []string{"ADMIN"}, updated.Roles)

	// removing an absent role is a no-op, not a failure
	updated, err = svc.RemoveRole(context.Background(), user.ID, "USER")
	require.NoError(t, err)
	require.Equal(t, []string{"ADMIN"}, updated.Roles)
}

func TestRoleMutationUnknownUser(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.AssignRole(context.Background(), 42, "ADMIN")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RemoveRole(context.Background(), 42, "ADMIN")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetAndList(t *testing.T) {
	svc, _ := newService(t)
	user := registerAlice(t, svc)

	byName, err := svc.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)

	byID, err := svc.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)

	_, err = svc.GetByUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Empty(t, all[0].PasswordHash)
}

func TestListAllFault(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("connection reset")
	svc := NewAuthService(repo, testLogger())

	_, err := svc.ListAll(context.Background())
	require.ErrorIs(t, err, ErrInternal)
}
