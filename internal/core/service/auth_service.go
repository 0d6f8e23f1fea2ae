package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/pkg/metrics"
)

// Validator checks an input struct and returns domain.ValidationErrors.
type Validator interface {
	Validate(i any) error
}

// AuthService implements login, registration and token resolution.
type AuthService struct {
	users     ports.UserRepository
	hasher    ports.PasswordHasher
	tokens    ports.TokenService
	validator Validator
	limiter   ports.LoginLimiter
	audit     ports.AuditPublisher
	tokenTTL  time.Duration
	log       zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the required collaborators. The login limiter and the
// audit publisher are optional; see WithLoginLimiter and WithAudit.
func NewAuthService(
	users ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	validator Validator,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		limiter:   noopLimiter{},
		audit:     noopAudit{},
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

func (s *AuthService) WithLoginLimiter(l ports.LoginLimiter) *AuthService {
	if l != nil {
		s.limiter = l
	}
	return s
}

func (s *AuthService) WithAudit(p ports.AuditPublisher) *AuthService {
	if p != nil {
		s.audit = p
	}
	return s
}

// Login verifies identifier (username or email) and password and returns a
// signed access token. Unknown identifiers and wrong passwords both yield
// domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (string, error) {
	if identifier == "" || password == "" {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return "", domain.ErrInvalidCredentials
	}

	allowed, err := s.limiter.Allow(ctx, identifier)
	if err != nil {
		s.log.Warn().Err(err).Str("identifier", identifier).Msg("login limiter unavailable")
	}
	if !allowed {
		metrics.LoginsTotal.WithLabelValues("throttled").Inc()
		s.audit.Publish(domain.NewAuthEvent(domain.EventLoginThrottled, identifier))
		s.log.Warn().Str("identifier", identifier).Msg("login throttled")
		return "", domain.ErrTooManyAttempts
	}

	creds, err := s.users.FindCredentials(ctx, identifier)
	if errors.Is(err, domain.ErrUserNotFound) {
		// Pay for one comparison anyway so unknown identifiers are not
		// distinguishable by response time.
		s.hasher.Verify(password, s.dummy())
		s.loginFailed(ctx, identifier, "non-existent user")
		s.audit.Publish(domain.NewAuthEvent(domain.EventLoginFailed, identifier))
		return "", domain.ErrInvalidCredentials
	}
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	if !s.hasher.Verify(password, creds.PasswordHash) {
		s.loginFailed(ctx, identifier, "password mismatch")
		event := domain.NewAuthEvent(domain.EventLoginFailed, domain.AccountSubject(creds.ID))
		event.UserID = creds.ID
		s.audit.Publish(event)
		return "", domain.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, identifier); err != nil {
		s.log.Warn().Err(err).Str("identifier", identifier).Msg("login limiter reset failed")
	}

	token, err := s.tokens.Issue(domain.IdentityOf(creds.User), s.tokenTTL)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	event := domain.NewAuthEvent(domain.EventLoginSucceeded, domain.AccountSubject(creds.ID))
	event.UserID = creds.ID
	s.audit.Publish(event)
	s.log.Info().Str("username", creds.Username).Int64("user_id", creds.ID).Msg("login succeeded")

	return token, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identifier, reason string) {
	metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
	if err := s.limiter.RecordFailure(ctx, identifier); err != nil {
		s.log.Warn().Err(err).Str("identifier", identifier).Msg("login limiter record failed")
	}
	s.log.Warn().Str("identifier", identifier).Str("reason", reason).Msg("login failed")
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equalisation-only")
		if err != nil {
			s.log.Error().Err(err).Msg("dummy hash generation failed")
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Register validates in before any storage access, rejects an email that is
// already taken, then hashes the password and inserts the user. The store's
// uniqueness constraint remains the authoritative guard against races.
func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (int64, error) {
	if err := s.validator.Validate(in); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return 0, err
	}

	_, err := s.users.FindByIdentifier(ctx, in.Email)
	switch {
	case err == nil:
		metrics.RegistrationsTotal.WithLabelValues("exists").Inc()
		return 0, domain.ErrUserExists
	case !errors.Is(err, domain.ErrUserNotFound):
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	id, err := s.users.Create(ctx, in.Username, in.Email, hash)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			metrics.RegistrationsTotal.WithLabelValues("exists").Inc()
		} else {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	event := domain.NewAuthEvent(domain.EventUserRegistered, domain.AccountSubject(id))
	event.UserID = id
	s.audit.Publish(event)
	s.log.Info().Str("username", in.Username).Int64("user_id", id).Msg("user registered")

	return id, nil
}

// Authenticate resolves a bearer token to the identity it encodes. It never
// touches storage: the token's signed content and the clock are the only inputs.
func (s *AuthService) Authenticate(_ context.Context, token string) (*domain.Identity, error) {
	identity, err := s.tokens.Validate(token)
	switch {
	case err == nil:
		metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	case errors.Is(err, domain.ErrExpiredToken):
		metrics.TokenValidationsTotal.WithLabelValues("expired").Inc()
	default:
		metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("token rejected")
		return nil, err
	}
	return identity, nil
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (noopLimiter) RecordFailure(context.Context, string) error  { return nil }
func (noopLimiter) Reset(context.Context, string) error          { return nil }

type noopAudit struct{}

func (noopAudit) Publish(domain.AuthEvent) {}
