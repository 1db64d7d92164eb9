package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/internal/handlers"
	"github.com/nexlify/user-accounts/internal/password"
	"github.com/nexlify/user-accounts/internal/service"
	"github.com/nexlify/user-accounts/pkg/auth"
	"github.com/nexlify/user-accounts/pkg/config"
	"github.com/nexlify/user-accounts/pkg/events"
)

// ---------- Mocks ----------

type memRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]*domain.User)}
}

func (m *memRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	m.users[user.ID.Hex()] = &cp
	return user, nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) List(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, id string, req *domain.UpdateUserRequest) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (m *memRepo) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *memRepo) SetResetCode(_ context.Context, id string, code string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordResetCode = code
	exp := expires
	u.PasswordResetExpires = &exp
	return nil
}

func (m *memRepo) ClearResetCode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordResetCode = ""
		u.PasswordResetExpires = nil
	}
	return nil
}

func (m *memRepo) FindByResetCode(_ context.Context, code string, now time.Time) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PasswordResetCode == code && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ConsumeResetCode(_ context.Context, code, newPasswordHash string, now time.Time) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PasswordResetCode == code && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now) {
			u.PasswordHash = newPasswordHash
			u.PasswordResetCode = ""
			u.PasswordResetExpires = nil
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) DeleteExpiredResetCodes(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type captureMailer struct {
	lastCode string
	sendErr  error
}

func (c *captureMailer) SendPasswordResetEmail(_, _, code string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.lastCode = code
	return nil
}

type captureSMS struct {
	lastCode string
}

func (c *captureSMS) SendPasswordResetSMS(_, code string) error {
	c.lastCode = code
	return nil
}

type allowLimiter struct{}

func (allowLimiter) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

type denyLimiter struct{}

func (denyLimiter) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

// ---------- Test setup ----------

const testSecret = "handlers-test-secret"

type env struct {
	server *httptest.Server
	repo   *memRepo
	mailer *captureMailer
	sms    *captureSMS
}

func testConfig() *config.Config {
	return &config.Config{
		Env: "test",
		Auth: config.AuthConfig{
			JWTSecret:    testSecret,
			TokenTTL:     time.Hour,
			CookieTTL:    time.Hour,
			ResetCodeTTL: 10 * time.Minute,
		},
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo := newMemRepo()
	ml := &captureMailer{}
	sm := &captureSMS{}
	svc := service.NewAuthService(repo, password.NewHasher(), ml, sm, events.NoopPublisher{}, testConfig())
	h := handlers.New(svc, allowLimiter{}, testConfig())

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &env{server: srv, repo: repo, mailer: ml, sms: sm}
}

func (e *env) request(t *testing.T, method, path string, body interface{}, modify ...func(*http.Request)) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.server.URL+path, buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range modify {
		fn(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	var decoded map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("Invalid JSON response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func validSignup() map[string]string {
	return map[string]string{
		"firstName":       "Ann",
		"lastName":        "Lee",
		"email":           "ann@x.com",
		"phone":           "+15551234567",
		"password":        "secret123",
		"passwordConfirm": "secret123",
	}
}

func (e *env) signup(t *testing.T) {
	t.Helper()
	resp, _ := e.request(t, http.MethodPost, "/signup", validSignup())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Signup returned %d", resp.StatusCode)
	}
}

func (e *env) login(t *testing.T) (token string, cookie *http.Cookie) {
	t.Helper()
	resp, body := e.request(t, http.MethodPost, "/login", map[string]string{
		"email": "ann@x.com", "password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login returned %d", resp.StatusCode)
	}
	token, _ = body["token"].(string)
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			cookie = c
		}
	}
	return token, cookie
}

// ---------- Tests ----------

func TestSignupEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(t, http.MethodPost, "/signup", validSignup())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if body["status"] != "success" {
		t.Fatalf("Expected success envelope, got %+v", body)
	}

	stored, _ := e.repo.FindByEmail(context.Background(), "ann@x.com")
	if stored == nil {
		t.Fatal("Expected account created")
	}
}

func TestSignupEndpoint_ValidationFailure(t *testing.T) {
	e := newEnv(t)

	bad := validSignup()
	bad["passwordConfirm"] = "other123"
	resp, body := e.request(t, http.MethodPost, "/signup", bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("Expected VALIDATION_ERROR, got %+v", body)
	}
	if stored, _ := e.repo.FindByEmail(context.Background(), "ann@x.com"); stored != nil {
		t.Fatal("Expected no account created")
	}
}

func TestSignupEndpoint_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	resp, body := e.request(t, http.MethodPost, "/signup", validSignup())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "EMAIL_EXISTS" {
		t.Fatalf("Expected EMAIL_EXISTS, got %+v", body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	resp, body := e.request(t, http.MethodPost, "/login", map[string]string{
		"email": "ann@x.com", "password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("Expected token in body")
	}
	if _, err := auth.Parse(token, testSecret); err != nil {
		t.Fatalf("Returned token failed to verify: %v", err)
	}

	var jwtCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			jwtCookie = c
		}
	}
	if jwtCookie == nil || jwtCookie.Value != token {
		t.Fatalf("Expected jwt cookie carrying the token, got %+v", jwtCookie)
	}
	if !jwtCookie.HttpOnly {
		t.Fatal("Expected httpOnly cookie")
	}

	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), "secret123") || strings.Contains(strings.ToLower(string(raw)), `"password"`) {
		t.Fatalf("Response leaks password material: %s", raw)
	}
}

func TestLoginEndpoint_Failures(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{"wrong password", map[string]string{"email": "ann@x.com", "password": "wrong-pass"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown email", map[string]string{"email": "nobody@x.com", "password": "secret123"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"missing fields", map[string]string{"email": "ann@x.com"}, http.StatusBadRequest, "MISSING_CREDENTIALS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.request(t, http.MethodPost, "/login", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body["code"] != tt.wantCode {
				t.Fatalf("Expected %s, got %+v", tt.wantCode, body)
			}
		})
	}
}

func TestProtectedEndpoint(t *testing.T) {
	e := newEnv(t)
	e.signup(t)
	token, cookie := e.login(t)

	// Bearer header
	resp, _ := e.request(t, http.MethodGet, "/protected", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Bearer auth: expected 200, got %d", resp.StatusCode)
	}

	// Cookie
	resp, _ = e.request(t, http.MethodGet, "/protected", nil, func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Cookie auth: expected 200, got %d", resp.StatusCode)
	}
}

func TestProtectedEndpoint_Rejections(t *testing.T) {
	e := newEnv(t)
	e.signup(t)
	token, _ := e.login(t)

	expired, err := auth.Issue("000000000000000000000000", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("Failed to issue expired token: %v", err)
	}

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"no token", "", "UNAUTHORIZED"},
		{"tampered token", "Bearer " + token + "x", "INVALID_TOKEN"},
		{"expired token", "Bearer " + expired, "EXPIRED_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.request(t, http.MethodGet, "/protected", nil, func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
			})
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("Expected 401, got %d", resp.StatusCode)
			}
			if body["code"] != tt.wantCode {
				t.Fatalf("Expected %s, got %+v", tt.wantCode, body)
			}
		})
	}
}

func TestProtectedEndpoint_DeletedSubject(t *testing.T) {
	e := newEnv(t)
	e.signup(t)
	token, _ := e.login(t)

	user, _ := e.repo.FindByEmail(context.Background(), "ann@x.com")
	if _, err := e.repo.Delete(context.Background(), user.ID.Hex()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	resp, body := e.request(t, http.MethodGet, "/protected", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("Expected NOT_FOUND, got %+v", body)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(t, http.MethodGet, "/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "success" {
		t.Fatalf("Expected success envelope, got %+v", body)
	}

	var jwtCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			jwtCookie = c
		}
	}
	if jwtCookie == nil || jwtCookie.Value != "loggedout" {
		t.Fatalf("Expected replacement jwt cookie, got %+v", jwtCookie)
	}
	if jwtCookie.Expires.After(time.Now().Add(time.Second)) {
		t.Fatalf("Expected near-immediate expiry, got %v", jwtCookie.Expires)
	}
}

func TestPasswordResetFlow_Email(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	resp, _ := e.request(t, http.MethodPost, "/forgotPassword", map[string]string{"email": "ann@x.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgotPassword returned %d", resp.StatusCode)
	}
	if len(e.mailer.lastCode) != 6 {
		t.Fatalf("Expected 6-digit code mailed, got %q", e.mailer.lastCode)
	}

	resp, _ = e.request(t, http.MethodPatch, "/resetPassword/"+e.mailer.lastCode, map[string]string{
		"password": "newsecret1", "passwordConfirm": "newsecret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resetPassword returned %d", resp.StatusCode)
	}

	// New password is live
	resp, _ = e.request(t, http.MethodPost, "/login", map[string]string{
		"email": "ann@x.com", "password": "newsecret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login with new password returned %d", resp.StatusCode)
	}

	// Code cannot be replayed
	resp, body := e.request(t, http.MethodPatch, "/resetPassword/"+e.mailer.lastCode, map[string]string{
		"password": "another12", "passwordConfirm": "another12",
	})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "INVALID_RESET_CODE" {
		t.Fatalf("Expected INVALID_RESET_CODE on replay, got %d %+v", resp.StatusCode, body)
	}
}

func TestPasswordResetFlow_SMS(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	resp, _ := e.request(t, http.MethodPost, "/forgetPasswordNumber", map[string]string{"phone": "+15551234567"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgetPasswordNumber returned %d", resp.StatusCode)
	}
	if len(e.sms.lastCode) != 6 {
		t.Fatalf("Expected 6-digit code texted, got %q", e.sms.lastCode)
	}

	resp, _ = e.request(t, http.MethodPatch, "/resetPasswordNumber/"+e.sms.lastCode, map[string]string{
		"password": "newsecret1", "passwordConfirm": "newsecret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resetPasswordNumber returned %d", resp.StatusCode)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(t, http.MethodPost, "/forgotPassword", map[string]string{"email": "nobody@x.com"})
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("Expected 404 NOT_FOUND, got %d %+v", resp.StatusCode, body)
	}
}

func TestForgotPassword_MissingEmail(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.request(t, http.MethodPost, "/forgotPassword", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestForgotPassword_RateLimited(t *testing.T) {
	repo := newMemRepo()
	ml := &captureMailer{}
	svc := service.NewAuthService(repo, password.NewHasher(), ml, &captureSMS{}, events.NoopPublisher{}, testConfig())
	h := handlers.New(svc, denyLimiter{}, testConfig())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	b, _ := json.Marshal(map[string]string{"email": "ann@x.com"})
	resp, err := http.Post(srv.URL+"/forgotPassword", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", resp.StatusCode)
	}
	if ml.lastCode != "" {
		t.Fatal("Expected no code dispatched when rate limited")
	}
}

func TestForgotPassword_DispatchFailure(t *testing.T) {
	e := newEnv(t)
	e.signup(t)
	e.mailer.sendErr = errors.New("smtp down")

	resp, body := e.request(t, http.MethodPost, "/forgotPassword", map[string]string{"email": "ann@x.com"})
	if resp.StatusCode != http.StatusInternalServerError || body["code"] != "DISPATCH_FAILED" {
		t.Fatalf("Expected 500 DISPATCH_FAILED, got %d %+v", resp.StatusCode, body)
	}
}

func TestUserEndpoints(t *testing.T) {
	e := newEnv(t)
	e.signup(t)

	user, _ := e.repo.FindByEmail(context.Background(), "ann@x.com")
	id := user.ID.Hex()

	// List
	resp, body := e.request(t, http.MethodGet, "/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List returned %d", resp.StatusCode)
	}
	if total, _ := body["total"].(float64); total != 1 {
		t.Fatalf("Expected total 1, got %+v", body)
	}

	// Get
	resp, body = e.request(t, http.MethodGet, "/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Get returned %d", resp.StatusCode)
	}
	data, _ := body["data"].(map[string]interface{})
	result, _ := data["result"].(map[string]interface{})
	if result["email"] != "ann@x.com" {
		t.Fatalf("Expected user record, got %+v", body)
	}
	if _, leaked := result["password"]; leaked {
		t.Fatal("Record leaks password field")
	}

	// Update
	resp, body = e.request(t, http.MethodPatch, "/"+id, map[string]string{"firstName": "Anna"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Update returned %d", resp.StatusCode)
	}
	data, _ = body["data"].(map[string]interface{})
	result, _ = data["result"].(map[string]interface{})
	if result["firstName"] != "Anna" {
		t.Fatalf("Expected updated name, got %+v", body)
	}

	// Delete
	resp, _ = e.request(t, http.MethodDelete, "/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Delete returned %d", resp.StatusCode)
	}

	resp, body = e.request(t, http.MethodGet, "/"+id, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("Expected 404 after delete, got %d %+v", resp.StatusCode, body)
	}
}

func TestGetUser_UnknownID(t *testing.T) {
	e := newEnv(t)

	resp, body := e.request(t, http.MethodGet, "/"+primitive.NewObjectID().Hex(), nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("Expected 404 NOT_FOUND, got %d %+v", resp.StatusCode, body)
	}
}
