package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/product-factory/internal/config"
	"github.com/jonathan/product-factory/internal/db"
	"github.com/jonathan/product-factory/internal/types"
)

type fakeUserStore struct {
	byEmail map[string]*db.User
	byID    map[uuid.UUID]*db.User

	getErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: make(map[string]*db.User),
		byID:    make(map[uuid.UUID]*db.User),
	}
}

func (s *fakeUserStore) CreateUser(_ context.Context, username, email, passwordHash string) (*db.User, error) {
	if _, exists := s.byEmail[email]; exists {
		return nil, db.ErrDuplicate
	}
	user := &db.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "user",
		CreatedAt:    time.Now(),
	}
	s.byEmail[email] = user
	s.byID[user.ID] = user
	return user, nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*db.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.byEmail[email], nil
}

func (s *fakeUserStore) GetUserByID(_ context.Context, userID uuid.UUID) (*db.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.byID[userID], nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	user, ok := s.byID[userID]
	if !ok {
		return errors.New("no such user")
	}
	user.PasswordHash = passwordHash
	return nil
}

func newTestUserService() (*UserService, *fakeUserStore) {
	store := newFakeUserStore()
	return NewUserService(store, &config.PasswordConfig{BcryptCost: 10}), store
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	svc, store := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, &types.CreateUserRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "hunter22hunter22",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.NotEqual(t, uuid.Nil, user.ID)

	// Hash, not the plaintext, is persisted.
	stored := store.byEmail["ada@example.com"]
	assert.NotEqual(t, "hunter22hunter22", stored.PasswordHash)

	loggedIn, err := svc.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "hunter22hunter22"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestUserService_RegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	req := &types.CreateUserRequest{Username: "ada", Email: "ada@example.com", Password: "hunter22hunter22"}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, req)
	var dupErr *ErrEmailAlreadyExists
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "ada@example.com", dupErr.Email)
}

func TestUserService_LoginFailures(t *testing.T) {
	svc, store := newTestUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, &types.CreateUserRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "hunter22hunter22",
	})
	require.NoError(t, err)

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, &types.LoginRequest{Email: "nobody@example.com", Password: "whatever1"})
		var credErr *ErrInvalidCredentials
		assert.ErrorAs(t, err, &credErr)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
		var credErr *ErrInvalidCredentials
		assert.ErrorAs(t, err, &credErr)
	})

	t.Run("store error", func(t *testing.T) {
		store.getErr = errors.New("connection refused")
		defer func() { store.getErr = nil }()

		_, err := svc.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "hunter22hunter22"})
		require.Error(t, err)
		var credErr *ErrInvalidCredentials
		assert.False(t, errors.As(err, &credErr))
	})
}

func TestUserService_UpdatePassword(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, &types.CreateUserRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "old-password-1",
	})
	require.NoError(t, err)

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.UpdatePassword(ctx, user.ID, "not-the-password", "new-password-1")
		var mismatch *ErrPasswordMismatch
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := svc.UpdatePassword(ctx, uuid.New(), "old-password-1", "new-password-1")
		var notFound *ErrUserNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, svc.UpdatePassword(ctx, user.ID, "old-password-1", "new-password-1"))

		_, err := svc.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "new-password-1"})
		assert.NoError(t, err)

		_, err = svc.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "old-password-1"})
		assert.Error(t, err)
	})
}
