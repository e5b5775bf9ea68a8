package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rainbow-buyers/internal/cooldown"
	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/repository/memory"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/internal/token"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
}

func newOutbox() *outbox {
	return &outbox{codes: map[string]string{}, links: map[string]string{}}
}

func (o *outbox) SendLoginOTP(_ context.Context, to, _, code string, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[to] = code
	return nil
}

func (o *outbox) SendPasswordResetOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	return o.SendLoginOTP(ctx, to, name, code, ttl)
}

func (o *outbox) SendVerificationLink(_ context.Context, to, _, tok string, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[to] = tok
	return nil
}

func (o *outbox) code(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

func (o *outbox) link(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[email]
}

type apiFixture struct {
	router http.Handler
	clock  *clock
	mail   *outbox
	users  *memory.UserStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := token.NewIssuer("handler-secret")
	require.NoError(t, err)
	issuer = issuer.WithClock(clk.Now)

	users := memory.NewUserStore()
	mail := newOutbox()
	otps := service.NewOTPService(memory.NewOTPStore(), cooldown.NewMemoryWithClock(clk.Now), 10*time.Minute, time.Minute, logger).
		WithClock(clk.Now)
	auth := service.NewAuthService(users, otps, issuer, mail, event.NewBus(logger), service.AuthConfig{
		AccessTTL:      24 * time.Hour,
		RefreshTTL:     7 * 24 * time.Hour,
		VerifyEmailTTL: time.Hour,
		ResetTTL:       15 * time.Minute,
		RequireOTP:     true,
		BcryptCost:     bcrypt.MinCost,
	}, logger).WithClock(clk.Now)

	cookies := middleware.Cookies{}
	resp := NewResponder(logger, false)
	h := NewAuthHandler(auth, cookies, resp).WithClock(clk.Now)

	r := chi.NewRouter()
	r.Route("/api/authentication", func(a chi.Router) {
		a.Post("/register", h.Register)
		a.Post("/login", h.Login)
		a.Post("/resend-otp", h.ResendOTP)
		a.Post("/verify-login-otp", h.VerifyLoginOTP)
		a.Post("/forgot-password", h.ForgotPassword)
		a.Post("/verify-otp", h.VerifyOTP)
		a.Post("/reset-password", h.ResetPassword)
		a.Post("/refresh", h.Refresh)
		a.Post("/logout", h.Logout)
		a.Get("/me", h.Me)
		a.Post("/verifyemailbytoken", h.VerifyEmailByToken)
	})

	return &apiFixture{router: r, clock: clk, mail: mail, users: users}
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.Equal(t, rec.Code, env.StatusCode)
	return rec, env
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// registerVerified creates ann@x.com and redeems her verification link.
func (f *apiFixture) registerVerified(t *testing.T) {
	t.Helper()

	rec, _ := f.do(t, http.MethodPost, "/api/authentication/register", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "Passw0rd!",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/authentication/verifyemailbytoken", map[string]string{
		"token": f.mail.link("ann@x.com"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

// loginWithOTP runs the two-step login and returns the session cookies.
func (f *apiFixture) loginWithOTP(t *testing.T) (*http.Cookie, *http.Cookie) {
	t.Helper()

	rec, _ := f.do(t, http.MethodPost, "/api/authentication/login", map[string]string{
		"email": "ann@x.com", "password": "Passw0rd!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/authentication/verify-login-otp", map[string]string{
		"email": "ann@x.com", "otp": f.mail.code("ann@x.com"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	access := cookieByName(rec, middleware.AccessTokenCookie)
	refresh := cookieByName(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

