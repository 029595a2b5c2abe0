package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-tokens"
)

type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func TestUserProviderVerifyIdentity(t *testing.T) {
	ctx := context.Background()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	passwordHash, err := hasher.HashPassword("password123")
	require.NoError(t, err)

	userID := uuid.New()
	user := &auth.User{
		ID:           userID,
		Name:         "Andrew",
		Email:        "andrew@example.com",
		PasswordHash: passwordHash,
	}

	t.Run("Successful verification", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker).WithHasher(hasher).WithLogger(silentLogger{})

		tracker.On("GetByEmail", ctx, "andrew@example.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "andrew@example.com", "password123")

		require.NoError(t, err)
		assert.Equal(t, userID.String(), identity.ID())
		assert.Equal(t, "Andrew", identity.Name())
		assert.Equal(t, "andrew@example.com", identity.Email())
		tracker.AssertExpectations(t)
	})

	t.Run("Invalid password", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker).WithHasher(hasher).WithLogger(silentLogger{})

		tracker.On("GetByEmail", ctx, "andrew@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "andrew@example.com", "wrong_password")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		tracker.AssertNotCalled(t, "TrackSuccessfulLogin", mock.Anything, mock.Anything)
	})

	t.Run("User not found", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker).WithHasher(hasher).WithLogger(silentLogger{})

		tracker.On("GetByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrIdentityNotFound).Once()

		identity, err := provider.VerifyIdentity(ctx, "nobody@example.com", "password123")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		tracker.AssertExpectations(t)
	})

	t.Run("Store failure", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker).WithHasher(hasher).WithLogger(silentLogger{})

		tracker.On("GetByEmail", ctx, "andrew@example.com").Return(nil, assert.AnError).Once()

		_, err := provider.VerifyIdentity(ctx, "andrew@example.com", "password123")

		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("Tracking failure does not block login", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker).WithHasher(hasher).WithLogger(silentLogger{})

		tracker.On("GetByEmail", ctx, "andrew@example.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", ctx, user).Return(assert.AnError).Once()

		identity, err := provider.VerifyIdentity(ctx, "andrew@example.com", "password123")

		require.NoError(t, err)
		assert.Equal(t, userID.String(), identity.ID())
	})
}

func TestUserProviderFindIdentityByID(t *testing.T) {
	ctx := context.Background()
	tracker := new(MockUserTracker)
	provider := auth.NewUserProvider(tracker)

	userID := uuid.New()
	tracker.On("GetByID", ctx, userID).Return(&auth.User{ID: userID, Name: "Andrew"}, nil).Once()

	identity, err := provider.FindIdentityByID(ctx, userID.String())
	require.NoError(t, err)
	assert.Equal(t, "Andrew", identity.Name())

	_, err = provider.FindIdentityByID(ctx, "not-a-uuid")
	assert.True(t, auth.IsIdentityNotFound(err))

	tracker.AssertExpectations(t)
}
