package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

type fakeUserStore struct {
	user         *models.User
	created      []*models.User
	lastLoginCtx chan context.Context
}

func newFakeUserStore(user *models.User) *fakeUserStore {
	return &fakeUserStore{user: user, lastLoginCtx: make(chan context.Context)}
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	f.created = append(f.created, user)
	return nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.user != nil && f.user.Email == email {
		return f.user, nil
	}
	return nil, nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	f.lastLoginCtx <- ctx
	return nil
}

func operatorAccount(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           uuid.New(),
		Email:        "ops@example.com",
		PasswordHash: string(hash),
		Role:         "admin",
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	store := newFakeUserStore(operatorAccount(t, "hunter2"))
	s := NewAuthService(store, "admin-secret", 1)

	ctx, cancel := context.WithCancel(context.Background())
	token, err := s.Login(ctx, "ops@example.com", "hunter2")
	require.NoError(t, err)
	cancel()

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims["email"])
	assert.Equal(t, "admin", claims["role"])

	// The last-login write outlives the request context.
	select {
	case got := <-store.lastLoginCtx:
		assert.NoError(t, got.Err())
	case <-time.After(2 * time.Second):
		t.Fatal("last login was never recorded")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newFakeUserStore(operatorAccount(t, "hunter2"))
	s := NewAuthService(store, "admin-secret", 1)

	_, err := s.Login(context.Background(), "ops@example.com", "letmein")
	assert.Error(t, err)
}

func TestLoginRejectsUnknownAccount(t *testing.T) {
	store := newFakeUserStore(nil)
	s := NewAuthService(store, "admin-secret", 1)

	_, err := s.Login(context.Background(), "nobody@example.com", "hunter2")
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	store := newFakeUserStore(operatorAccount(t, "hunter2"))
	s := NewAuthService(store, "admin-secret", 1)

	err := s.Register(context.Background(), "ops@example.com", "hunter2", "dup")
	assert.Error(t, err)
	assert.Empty(t, store.created)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	store := newFakeUserStore(operatorAccount(t, "hunter2"))

	issuer := NewAuthService(store, "other-secret", 1)
	token, err := issuer.Login(context.Background(), "ops@example.com", "hunter2")
	require.NoError(t, err)
	go func() { <-store.lastLoginCtx }()

	s := NewAuthService(store, "admin-secret", 1)
	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}
