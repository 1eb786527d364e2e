// Package jwt issues and validates the bearer tokens accepted by the operator API.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	gojwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer        = "amber-relay"
	defaultTokenDuration = time.Hour
	minSecretLength      = 32
)

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// Config contains token settings.
type Config struct {
	SecretKey           string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Claims are the custom claims carried by an access token.
type Claims struct {
	Role domain.Role `json:"role"`
	gojwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens.
type Authenticator struct {
	secret   []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if len(cfg.SecretKey) < minSecretLength {
		return nil, fmt.Errorf("jwt secret key must be at least %d characters", minSecretLength)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.AccessTokenDuration <= 0 {
		cfg.AccessTokenDuration = defaultTokenDuration
	}

	return &Authenticator{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		duration: cfg.AccessTokenDuration,
		now:      time.Now,
	}, nil
}

// IssueToken returns a signed token for subject with the given role.
func (a *Authenticator) IssueToken(subject string, role domain.Role) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !role.HasPermission(domain.RoleViewer) {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(a.duration)),
		},
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, issuer and expiry of a token
// and returns its subject and role.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(*gojwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(a.issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !claims.Role.HasPermission(domain.RoleViewer) {
		return "", "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return claims.Subject, claims.Role, nil
}
