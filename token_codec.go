package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenFormatOpaque = "opaque"
	TokenFormatJWT    = "jwt"
)

// TokenSecretLength is the number of characters in a token secret
const TokenSecretLength = 40

const tokenSeparator = "|"

// TokenParts is the decoded content of a presented token
type TokenParts struct {
	ID       uuid.UUID
	UserID   string
	Secret   string
	IssuedAt time.Time
}

// TokenCodec turns token parts into the string handed to clients and back
type TokenCodec interface {
	Encode(parts TokenParts) (string, error)
	Decode(raw string) (TokenParts, error)
}

// NewTokenCodec selects a codec from the configured token format
func NewTokenCodec(cfg Config) (TokenCodec, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.GetTokenFormat()))
	switch format {
	case "", TokenFormatOpaque:
		return OpaqueCodec{}, nil
	case TokenFormatJWT:
		if cfg.GetSigningKey() == "" {
			return nil, fmt.Errorf("token format %q requires a signing key", TokenFormatJWT)
		}
		return NewJWTCodec([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience()), nil
	default:
		return nil, fmt.Errorf("unknown token format %q", format)
	}
}

// OpaqueCodec encodes tokens as "<id>|<secret>"
type OpaqueCodec struct{}

func (OpaqueCodec) Encode(parts TokenParts) (string, error) {
	if parts.ID == uuid.Nil || parts.Secret == "" {
		return "", ErrTokenInvalid
	}
	return parts.ID.String() + tokenSeparator + parts.Secret, nil
}

func (OpaqueCodec) Decode(raw string) (TokenParts, error) {
	id, secret, ok := strings.Cut(raw, tokenSeparator)
	if !ok || secret == "" {
		return TokenParts{}, ErrTokenInvalid
	}

	tokenID, err := uuid.Parse(id)
	if err != nil {
		return TokenParts{}, ErrTokenInvalid
	}

	return TokenParts{ID: tokenID, Secret: secret}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Secret string `json:"sec"`
}

// JWTCodec wraps the token id and secret in an HS256 signed JWT
type JWTCodec struct {
	signingKey []byte
	issuer     string
	audience   []string
}

func NewJWTCodec(signingKey []byte, issuer string, audience []string) *JWTCodec {
	return &JWTCodec{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
	}
}

func (c *JWTCodec) Encode(parts TokenParts) (string, error) {
	if parts.ID == uuid.Nil || parts.Secret == "" {
		return "", ErrTokenInvalid
	}

	issuedAt := parts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	var aud jwt.ClaimStrings
	if len(c.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(c.audience))
		copy(aud, c.audience)
	}

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       parts.ID.String(),
			Subject:  parts.UserID,
			Issuer:   c.issuer,
			Audience: aud,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
		Secret: parts.Secret,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

func (c *JWTCodec) Decode(raw string) (TokenParts, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience[0]))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.signingKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return TokenParts{}, ErrTokenInvalid
	}

	tokenID, err := uuid.Parse(claims.ID)
	if err != nil || claims.Secret == "" {
		return TokenParts{}, ErrTokenInvalid
	}

	parts := TokenParts{
		ID:     tokenID,
		UserID: claims.Subject,
		Secret: claims.Secret,
	}
	if claims.IssuedAt != nil {
		parts.IssuedAt = claims.IssuedAt.Time
	}
	return parts, nil
}

// GenerateTokenSecret returns TokenSecretLength random hex characters
func GenerateTokenSecret() (string, error) {
	b := make([]byte, TokenSecretLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashTokenSecret returns the storage digest of a token secret
func HashTokenSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
