package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-tokens"
)

func TestGenerateTokenSecret(t *testing.T) {
	a, err := auth.GenerateTokenSecret()
	require.NoError(t, err)
	b, err := auth.GenerateTokenSecret()
	require.NoError(t, err)

	assert.Len(t, a, auth.TokenSecretLength)
	assert.NotEqual(t, a, b)
	assert.Len(t, auth.HashTokenSecret(a), 64)
	assert.Equal(t, auth.HashTokenSecret(a), auth.HashTokenSecret(a))
}

func TestOpaqueCodec(t *testing.T) {
	codec := auth.OpaqueCodec{}
	id := uuid.New()

	raw, err := codec.Encode(auth.TokenParts{ID: id, Secret: "abc"})
	require.NoError(t, err)
	assert.Equal(t, id.String()+"|abc", raw)

	parts, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, id, parts.ID)
	assert.Equal(t, "abc", parts.Secret)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "no separator", raw: id.String()},
		{name: "empty secret", raw: id.String() + "|"},
		{name: "bad id", raw: "not-a-uuid|abc"},
		{name: "empty", raw: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.raw)
			assert.ErrorIs(t, err, auth.ErrTokenInvalid)
		})
	}

	_, err = codec.Encode(auth.TokenParts{Secret: "abc"})
	assert.Error(t, err)
}

func TestJWTCodec(t *testing.T) {
	codec := auth.NewJWTCodec([]byte("signing-key"), "go-auth-tokens", []string{"api"})
	id := uuid.New()
	userID := uuid.NewString()
	issuedAt := time.Now().Truncate(time.Second)

	raw, err := codec.Encode(auth.TokenParts{ID: id, UserID: userID, Secret: "s3cret", IssuedAt: issuedAt})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(raw, "."))

	parts, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, id, parts.ID)
	assert.Equal(t, userID, parts.UserID)
	assert.Equal(t, "s3cret", parts.Secret)
	assert.True(t, issuedAt.Equal(parts.IssuedAt))

	t.Run("wrong key", func(t *testing.T) {
		other := auth.NewJWTCodec([]byte("other-key"), "go-auth-tokens", []string{"api"})
		_, err := other.Decode(raw)
		assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := auth.NewJWTCodec([]byte("signing-key"), "go-auth-tokens", []string{"admin"})
		_, err := other.Decode(raw)
		assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"jti": id.String(),
			"iss": "go-auth-tokens",
			"aud": "api",
			"sec": "s3cret",
		})
		signed, err := token.SignedString([]byte("signing-key"))
		require.NoError(t, err)

		_, err = codec.Decode(signed)
		assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := codec.Decode(id.String() + "|s3cret")
		assert.ErrorIs(t, err, auth.ErrTokenInvalid)
	})
}

func TestNewTokenCodec(t *testing.T) {
	codec, err := auth.NewTokenCodec(testConfig{})
	require.NoError(t, err)
	assert.IsType(t, auth.OpaqueCodec{}, codec)

	codec, err = auth.NewTokenCodec(testConfig{tokenFormat: "JWT", signingKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &auth.JWTCodec{}, codec)

	_, err = auth.NewTokenCodec(testConfig{tokenFormat: "jwt"})
	assert.Error(t, err)

	_, err = auth.NewTokenCodec(testConfig{tokenFormat: "paseto"})
	assert.Error(t, err)
}
