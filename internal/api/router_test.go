package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/core/domain"
)

type stubAuth struct {
	identities   map[string]*domain.Identity
	users        map[string]string // username -> password
	lastRegister domain.RegisterInput
	registerErr  error
}

func (s *stubAuth) Login(_ context.Context, identifier, password string) (string, error) {
	if pw, ok := s.users[identifier]; ok && pw == password {
		return "token-" + identifier, nil
	}
	return "", domain.ErrInvalidCredentials
}

func (s *stubAuth) Register(_ context.Context, in domain.RegisterInput) (int64, error) {
	s.lastRegister = in
	if s.registerErr != nil {
		return 0, s.registerErr
	}
	return 42, nil
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*domain.Identity, error) {
	if id, ok := s.identities[token]; ok {
		return id, nil
	}
	return nil, domain.ErrInvalidToken
}

type roleCall struct {
	action string
	actor  string
	userID int64
	role   domain.Role
}

type stubUsers struct {
	calls []roleCall
	err   error
}

func (s *stubUsers) GrantRole(_ context.Context, actor *domain.Identity, userID int64, role domain.Role) error {
	s.calls = append(s.calls, roleCall{"grant", actor.Username, userID, role})
	return s.err
}

func (s *stubUsers) RevokeRole(_ context.Context, actor *domain.Identity, userID int64, role domain.Role) error {
	s.calls = append(s.calls, roleCall{"revoke", actor.Username, userID, role})
	return s.err
}

func newTestRouter(t *testing.T, checks map[string]handler.Check) (http.Handler, *stubAuth, *stubUsers) {
	t.Helper()
	auth := &stubAuth{
		identities: map[string]*domain.Identity{
			"admin-token": {ID: 1, Username: "root", Email: "root@example.com", Roles: domain.Roles{domain.RoleAdmin, domain.RoleUser}},
			"user-token":  {ID: 2, Username: "alice", Email: "alice@example.com", Roles: domain.Roles{domain.RoleUser}},
		},
		users: map[string]string{"alice": "secret"},
	}
	users := &stubUsers{}
	reg := prometheus.NewRegistry()
	e := NewRouter(Dependencies{
		Auth:        auth,
		Users:       users,
		Checks:      checks,
		Log:         zerolog.Nop(),
		CORSOrigins: []string{"http://localhost:5173"},
		Registerer:  reg,
		Gatherer:    reg,
	})
	return e, auth, users
}

func do(h http.Handler, method, target, token string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestRouter_LoginForm(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/login", "", url.Values{"username": {"alice"}, "password": {"secret"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["access_token"] != "token-alice" || body["token_type"] != "bearer" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRouter_LoginJSON(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_LoginWrongPassword(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/login", "", url.Values{"username": {"alice"}, "password": {"nope"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("expected Bearer challenge, got %q", got)
	}
	if body := decode(t, rec); body["detail"] != "Incorrect username or password" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRouter_LoginMissingFields(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/login", "", url.Values{"username": {"alice"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	errs, _ := decode(t, rec)["errors"].(map[string]any)
	if _, ok := errs["password"]; !ok {
		t.Fatalf("expected password field error, got %v", errs)
	}
}

func TestRouter_CreateUser(t *testing.T) {
	h, auth, _ := newTestRouter(t, nil)

	form := url.Values{
		"username":         {"bob"},
		"email":            {"bob@example.com"},
		"password":         {"hunter2"},
		"confirm_password": {"hunter2"},
	}
	rec := do(h, http.MethodPost, "/create-user", "", form)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	data, _ := body["data"].(map[string]any)
	if body["status"] != "success" || data["user_id"] != float64(42) {
		t.Fatalf("unexpected body %v", body)
	}
	if auth.lastRegister.ConfirmPassword != "hunter2" || auth.lastRegister.Email != "bob@example.com" {
		t.Fatalf("form not forwarded: %+v", auth.lastRegister)
	}
}

func TestRouter_CreateUserConflict(t *testing.T) {
	h, auth, _ := newTestRouter(t, nil)
	auth.registerErr = domain.ErrUserExists

	rec := do(h, http.MethodPost, "/create-user", "", url.Values{"username": {"bob"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRouter_Me(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := do(h, http.MethodGet, "/users/me", "user-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["username"] != "alice" || body["id"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
	if _, leaked := body["password"]; leaked {
		t.Fatalf("password must never be serialised")
	}

	rec = do(h, http.MethodGet, "/users/me/items", "user-token", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"owner":"alice"`) {
		t.Fatalf("unexpected items response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_MeRequiresToken(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	for _, token := range []string{"", "garbage"} {
		rec := do(h, http.MethodGet, "/users/me", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("token %q: missing challenge", token)
		}
	}
}

func TestRouter_AdminRoles(t *testing.T) {
	h, _, users := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/admin/users/7/roles/admin", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decode(t, rec)["message"]; msg != "Role admin added to user 7 successfully" {
		t.Fatalf("unexpected message %v", msg)
	}

	rec = do(h, http.MethodDelete, "/admin/users/7/roles/admin", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	want := []roleCall{{"grant", "root", 7, domain.RoleAdmin}, {"revoke", "root", 7, domain.RoleAdmin}}
	if len(users.calls) != len(want) {
		t.Fatalf("expected %d calls, got %+v", len(want), users.calls)
	}
	for i := range want {
		if users.calls[i] != want[i] {
			t.Fatalf("call %d: expected %+v, got %+v", i, want[i], users.calls[i])
		}
	}
}

func TestRouter_AdminRolesGuard(t *testing.T) {
	h, _, users := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/admin/users/7/roles/admin", "user-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec = do(h, http.MethodPost, "/admin/users/7/roles/admin", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(users.calls) != 0 {
		t.Fatalf("service must not be reached, got %+v", users.calls)
	}
}

func TestRouter_AdminRolesBadParams(t *testing.T) {
	h, _, users := newTestRouter(t, nil)

	rec := do(h, http.MethodPost, "/admin/users/abc/roles/superuser", "admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errs, _ := decode(t, rec)["errors"].(map[string]any)
	if _, ok := errs["user_id"]; !ok {
		t.Fatalf("expected user_id error, got %v", errs)
	}
	if _, ok := errs["role"]; !ok {
		t.Fatalf("expected role error, got %v", errs)
	}
	if len(users.calls) != 0 {
		t.Fatalf("service must not be reached")
	}
}

func TestRouter_AdminRolesUnknownUser(t *testing.T) {
	h, _, users := newTestRouter(t, nil)
	users.err = domain.ErrUserNotFound

	rec := do(h, http.MethodPost, "/admin/users/99/roles/user", "admin-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	checks := map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}
	h, _, _ := newTestRouter(t, checks)

	if rec := do(h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("liveness: expected 200, got %d", rec.Code)
	}

	rec := do(h, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readiness: expected 503, got %d", rec.Code)
	}
	body := decode(t, rec)
	deps, _ := body["dependencies"].(map[string]any)
	pg, _ := deps["postgres"].(map[string]any)
	rd, _ := deps["redis"].(map[string]any)
	if body["status"] != "degraded" || pg["status"] != "ok" || rd["status"] != "unhealthy" {
		t.Fatalf("unexpected readiness body %v", body)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("dependency error leaked: %s", rec.Body.String())
	}
}

func TestRouter_Metrics(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	_ = do(h, http.MethodGet, "/health", "", nil)
	rec := do(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected request metrics, got %s", rec.Body.String())
	}
}
