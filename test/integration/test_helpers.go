//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rainbow-buyers/internal/config"
	"rainbow-buyers/internal/cooldown"
	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/handler"
	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/repository/memory"
	"rainbow-buyers/internal/router"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/internal/storage"
	"rainbow-buyers/internal/token"
	"rainbow-buyers/internal/websocket"
	"rainbow-buyers/pkg/authclient"
)

const testPassword = "Password123!"

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
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

type testServer struct {
	*httptest.Server
	mail  *outbox
	users *memory.UserStore
	audit *memory.AuditStore
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                 config.EnvTest,
		BaseURL:             "http://localhost:3000",
		ServerPort:          "8080",
		RequestTimeout:      10 * time.Second,
		CORSOrigins:         []string{"http://localhost:3000"},
		RateLimitRPM:        1000,
		AuthRateLimitRPM:    1000,
		StoreDriver:         config.StoreDriverMemory,
		SecretKey:           "integration-secret",
		AccessTokenTTL:      24 * time.Hour,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		VerifyEmailTokenTTL: time.Hour,
		ResetTokenTTL:       15 * time.Minute,
		OTPTTL:              10 * time.Minute,
		OTPResendCooldown:   time.Minute,
		LoginRequireOTP:     true,
		BcryptCost:          bcrypt.MinCost,
		AvatarMaxBytes:      1 << 20,
		AvatarSize:          64,
		GuardLoginPath:      "/auth/login",
		GuardHomePath:       "/",
		GuardAdminPrefix:    "/admin",
	}
}

// newServer assembles the full router over in-memory stores, with the audit
// consumer and live feed running until the test ends.
func newServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	avatarStore, err := storage.New(t.TempDir())
	require.NoError(t, err)

	webRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(webRoot, "index.html"), []byte("<html>shop</html>"), 0o644))
	webStore, err := storage.New(webRoot)
	require.NoError(t, err)

	issuer, err := token.NewIssuer(cfg.SecretKey)
	require.NoError(t, err)

	users := memory.NewUserStore()
	auditStore := memory.NewAuditStore()
	mail := &outbox{codes: map[string]string{}, links: map[string]string{}}

	bus := event.NewBus(logger)
	events, unsubscribe := bus.Subscribe()

	otps := service.NewOTPService(memory.NewOTPStore(), cooldown.NewMemory(), cfg.OTPTTL, cfg.OTPResendCooldown, logger)
	auth := service.NewAuthService(users, otps, issuer, mail, bus, service.AuthConfig{
		AccessTTL:      cfg.AccessTokenTTL,
		RefreshTTL:     cfg.RefreshTokenTTL,
		VerifyEmailTTL: cfg.VerifyEmailTokenTTL,
		ResetTTL:       cfg.ResetTokenTTL,
		RequireOTP:     cfg.LoginRequireOTP,
		BcryptCost:     cfg.BcryptCost,
	}, logger)
	auditService := service.NewAuditService(auditStore, logger)

	feed := websocket.NewHub(bus, cfg.CORSOrigins, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	feedDone := make(chan struct{})
	go func() {
		defer close(done)
		auditService.Run(ctx, events)
	}()
	go func() {
		defer close(feedDone)
		feed.Run(ctx)
	}()

	cookies := middleware.Cookies{Secure: cfg.IsProduction()}
	resp := handler.NewResponder(logger, false)

	guardCfg := middleware.DefaultGuardConfig()
	guardCfg.LoginPath = cfg.GuardLoginPath
	guardCfg.HomePath = cfg.GuardHomePath
	guardCfg.AdminPrefix = cfg.GuardAdminPrefix

	srv := httptest.NewServer(router.New(cfg, logger,
		middleware.NewAuthMiddleware(issuer, cookies),
		middleware.NewRouteGuard(guardCfg, issuer, cookies),
		router.Handlers{
			Auth:   handler.NewAuthHandler(auth, cookies, resp),
			Avatar: handler.NewAvatarHandler(service.NewAvatarService(avatarStore, auth, cfg.AvatarSize, cfg.AvatarMaxBytes), cookies, resp),
			Audit:  handler.NewAuditHandler(auditService, resp),
			Feed:   handler.NewAuditFeedHandler(feed, resp),
			Health: handler.NewHealthHandler(map[string]handler.Pinger{
				"store": handler.PingFunc(func(context.Context) error { return nil }),
			}, resp),
			Docs:  handler.NewDocsHandler(filepath.Join("..", "..", "docs", "openapi.yaml"), "Rainbow Buyers Authentication API", resp),
			Pages: handler.NewPageHandler(webStore),
		}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		<-feedDone
		unsubscribe()
	})

	return &testServer{Server: srv, mail: mail, users: users, audit: auditStore}
}

// seedUser stores a verified account directly, bypassing registration.
func (s *testServer) seedUser(t *testing.T, email string, role model.Role) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.users.Create(context.Background(), model.User{
		ID:              uuid.NewString(),
		Name:            "Seeded",
		Email:           email,
		PasswordHash:    string(hash),
		Role:            role,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

// signIn runs the password plus OTP login through the client.
func (s *testServer) signIn(t *testing.T, email string) *authclient.Client {
	t.Helper()

	c, err := authclient.New(s.URL)
	require.NoError(t, err)

	otpRequired, err := c.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	require.True(t, otpRequired)

	_, err = c.VerifyLoginOTP(context.Background(), email, s.mail.code(email))
	require.NoError(t, err)

	return c
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}
