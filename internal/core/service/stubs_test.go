package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/infrastructure/security"
	"github.com/99minutos/identity-service/internal/pkg/validation"
)

// memUserRepo mirrors the PostgreSQL store: unique username and email,
// idempotent role mutation, never-empty role sets.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.UserCredentials

	findErr   error
	createErr error
	creates   int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, rows: make(map[int64]*domain.UserCredentials)}
}

func (r *memUserRepo) lookup(identifier string) *domain.UserCredentials {
	for _, u := range r.rows {
		if u.Username == identifier || u.Email == identifier {
			return u
		}
	}
	return nil
}

func (r *memUserRepo) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	creds, err := r.FindCredentials(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return &creds.User, nil
}

func (r *memUserRepo) FindCredentials(_ context.Context, identifier string) (*domain.UserCredentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u := r.lookup(identifier)
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	clone.Roles = append(domain.Roles(nil), u.Roles...)
	return &clone, nil
}

func (r *memUserRepo) Create(_ context.Context, username, email, hash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return 0, r.createErr
	}
	if r.lookup(username) != nil || r.lookup(email) != nil {
		return 0, domain.ErrUserExists
	}
	id := r.nextID
	r.nextID++
	r.rows[id] = &domain.UserCredentials{
		User:         domain.User{ID: id, Username: username, Email: email, Roles: domain.DefaultRoles()},
		PasswordHash: hash,
	}
	return id, nil
}

func (r *memUserRepo) AddRole(_ context.Context, id int64, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Roles = u.Roles.With(role)
	return nil
}

func (r *memUserRepo) RemoveRole(_ context.Context, id int64, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Roles = u.Roles.Without(role)
	return nil
}

type stubLimiter struct {
	blocked  bool
	failures map[string]int
	resets   int
}

func (l *stubLimiter) Allow(context.Context, string) (bool, error) { return !l.blocked, nil }

func (l *stubLimiter) RecordFailure(_ context.Context, id string) error {
	if l.failures == nil {
		l.failures = make(map[string]int)
	}
	l.failures[id]++
	return nil
}

func (l *stubLimiter) Reset(context.Context, string) error {
	l.resets++
	return nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (a *recordingAudit) Publish(e domain.AuthEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) types() []domain.AuthEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuthEventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo   *memUserRepo
	tokens *security.TokenService
	audit  *recordingAudit
	auth   *AuthService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTokenService("secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	repo := newMemUserRepo()
	audit := &recordingAudit{}
	auth := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), tokens, validation.New(), 30*time.Minute, zerolog.Nop()).
		WithAudit(audit)
	return &fixture{
		repo:   repo,
		tokens: tokens,
		audit:  audit,
		auth:   auth,
		users:  NewUserService(repo, audit, zerolog.Nop()),
	}
}

func registerInput(username, email, password string) domain.RegisterInput {
	return domain.RegisterInput{Username: username, Email: email, Password: password, ConfirmPassword: password}
}

func adminActor() *domain.Identity {
	return &domain.Identity{ID: 1000, Username: "root", Roles: domain.Roles{domain.RoleAdmin}}
}
