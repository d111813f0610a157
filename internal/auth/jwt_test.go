package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService("test-secret-key-for-testing-purposes", "eventvault", 15*time.Minute)
}

func TestNewJWTService(t *testing.T) {
	service := newTestJWTService()
	assert.NotNil(t, service)
	assert.Equal(t, 15*time.Minute, service.GetTokenExpiry())
}

func TestJWTService_GenerateToken_Success(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateToken("svc-billing", ScopeRead, ScopeWrite)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
}

func TestJWTService_ValidateToken_Valid(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateToken("user-456", ScopeRead)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, "user-456", claims.Principal())
	assert.Equal(t, "eventvault", claims.Issuer)
	assert.True(t, claims.HasScope(ScopeRead))
	assert.False(t, claims.HasScope(ScopeWrite))
}

func TestClaims_AdminImpliesAllScopes(t *testing.T) {
	claims := &Claims{Scopes: []string{ScopeAdmin}}
	assert.True(t, claims.HasScope(ScopeRead))
	assert.True(t, claims.HasScope(ScopeWrite))
	assert.True(t, claims.HasScope(ScopeAdmin))
	assert.False(t, (&Claims{}).HasScope(ScopeRead))
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret", "", 1*time.Millisecond)

	token, _, err := service.GenerateToken("user-123", ScopeRead)
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	claims, err := service.ValidateToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateToken_WrongSignature(t *testing.T) {
	service1 := NewJWTService("secret-key-1", "eventvault", 15*time.Minute)
	service2 := NewJWTService("secret-key-2", "eventvault", 15*time.Minute)

	token, _, err := service1.GenerateToken("user-123", ScopeRead)
	require.NoError(t, err)

	claims, err := service2.ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_WrongIssuer(t *testing.T) {
	issuer := NewJWTService("shared-secret", "other-service", 15*time.Minute)
	service := NewJWTService("shared-secret", "eventvault", 15*time.Minute)

	token, _, err := issuer.GenerateToken("user-123", ScopeRead)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ValidateToken_WrongAlgorithm(t *testing.T) {
	service := newTestJWTService()

	// Create a token with a different algorithm (none)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Scopes:           []string{ScopeAdmin},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123", Issuer: "eventvault"},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateToken(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_MissingSubject(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateToken("", ScopeRead)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}
