package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// DefaultTokenTTL applies when Issue is called without a positive ttl.
const DefaultTokenTTL = 15 * time.Minute

// accessClaims is the signed payload. "sub" carries the username.
type accessClaims struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService implements ports.TokenService with HS256 over one shared secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService fails when secret is empty; callers treat that as fatal at startup.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token service: signing secret is required")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// WithClock swaps the time source. Used by tests to step across expiry.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *s
	clone.now = now
	return &clone
}

func (s *TokenService) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	claims := accessClaims{
		UserID: identity.ID,
		Email:  identity.Email,
		Roles:  identity.Roles.Normalize().Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) Validate(token string) (*domain.Identity, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}

	if claims.Subject == "" || claims.UserID == 0 {
		return nil, domain.ErrInvalidToken
	}
	roles, err := domain.ParseRoles(claims.Roles)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	return &domain.Identity{
		ID:        claims.UserID,
		Username:  claims.Subject,
		Email:     claims.Email,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
