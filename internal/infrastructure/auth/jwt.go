// Package auth verifies bearer tokens issued by the identity provider and
// extracts the tenant and user they were issued for.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/postcard/backend/internal/infrastructure/config"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// Claims are the token claims this service relies on
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Identity is the caller resolved from a verified token
type Identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Username string
}

// Identity parses the tenant and user ids
func (c *Claims) Identity() (Identity, error) {
	if c.TenantID == "" {
		return Identity{}, ErrMissingTenantID
	}
	if c.UserID == "" {
		return Identity{}, ErrMissingUserID
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: tenant_id: %v", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: user_id: %v", ErrInvalidToken, err)
	}
	return Identity{TenantID: tenantID, UserID: userID, Username: c.Username}, nil
}

// Verifier validates HMAC signed tokens
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a Verifier. When an issuer is configured tokens must
// carry it.
func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}, nil
}

// Verify checks signature, lifetime and issuer, then resolves the identity
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return Identity{}, ErrTokenNotYetValid
	case err != nil:
		return Identity{}, ErrInvalidToken
	case !token.Valid:
		return Identity{}, ErrInvalidToken
	}

	return claims.Identity()
}

// Issue signs a token for id. Tokens are normally minted by the identity
// provider; this is used by local tooling and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    v.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: id.TenantID.String(),
		UserID:   id.UserID.String(),
		Username: id.Username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
