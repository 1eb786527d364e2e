package jwt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuthenticator(t *testing.T, now time.Time) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{SecretKey: testSecret, AccessTokenDuration: 10 * time.Minute})
	require.NoError(t, err)
	a.now = func() time.Time { return now }
	return a
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	token, err := a.IssueToken("dispatcher-7", domain.RoleOperator)
	require.NoError(t, err)

	subject, role, err := a.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "dispatcher-7", subject)
	assert.Equal(t, domain.RoleOperator, role)
}

func TestAuthenticator_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	token, err := newTestAuthenticator(t, issuedAt).IssueToken("u1", domain.RoleViewer)
	require.NoError(t, err)

	_, _, err = newTestAuthenticator(t, time.Now()).ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_WrongSecret(t *testing.T) {
	other, err := NewAuthenticator(Config{SecretKey: strings.Repeat("x", 32)})
	require.NoError(t, err)
	token, err := other.IssueToken("u1", domain.RoleAdmin)
	require.NoError(t, err)

	_, _, err = newTestAuthenticator(t, time.Now()).ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    defaultIssuer,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, _, err = newTestAuthenticator(t, time.Now()).ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_RejectsUnknownRole(t *testing.T) {
	claims := Claims{
		Role: "superuser",
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    defaultIssuer,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, _, err = newTestAuthenticator(t, time.Now()).ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewAuthenticator_Validation(t *testing.T) {
	_, err := NewAuthenticator(Config{SecretKey: "short"})
	require.Error(t, err)

	a, err := NewAuthenticator(Config{SecretKey: testSecret})
	require.NoError(t, err)
	assert.Equal(t, defaultIssuer, a.issuer)
	assert.Equal(t, defaultTokenDuration, a.duration)

	_, err = a.IssueToken("", domain.RoleOperator)
	require.Error(t, err)
	_, err = a.IssueToken("u1", "root")
	require.Error(t, err)
}
