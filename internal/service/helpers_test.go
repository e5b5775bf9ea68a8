package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"rainbow-buyers/internal/cooldown"
	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/repository/memory"
	"rainbow-buyers/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	Kind  string
	To    string
	Value string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (n *fakeNotifier) record(kind, to, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, sentMail{Kind: kind, To: to, Value: value})
	return nil
}

func (n *fakeNotifier) SendLoginOTP(_ context.Context, to, _, code string, _ time.Duration) error {
	return n.record("otp", to, code)
}

func (n *fakeNotifier) SendPasswordResetOTP(_ context.Context, to, _, code string, _ time.Duration) error {
	return n.record("reset", to, code)
}

func (n *fakeNotifier) SendVerificationLink(_ context.Context, to, _, tok string, _ time.Duration) error {
	return n.record("verify", to, tok)
}

func (n *fakeNotifier) setFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func (n *fakeNotifier) last(t *testing.T, kind string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i].Value
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return ""
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

type authFixture struct {
	svc    *AuthService
	otps   *OTPService
	users  *memory.UserStore
	otpDB  *memory.OTPStore
	mail   *fakeNotifier
	clock  *testClock
	issuer *token.Issuer
	bus    *event.InMemoryBus
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTTL:      24 * time.Hour,
		RefreshTTL:     7 * 24 * time.Hour,
		VerifyEmailTTL: time.Hour,
		ResetTTL:       15 * time.Minute,
		RequireOTP:     true,
		BcryptCost:     bcrypt.MinCost,
	}
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthConfig)) *authFixture {
	t.Helper()

	cfg := testAuthConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	clock := newTestClock()
	issuer, err := token.NewIssuer("test-secret")
	require.NoError(t, err)
	issuer = issuer.WithClock(clock.Now)

	users := memory.NewUserStore()
	otpDB := memory.NewOTPStore()
	otps := NewOTPService(otpDB, cooldown.NewMemoryWithClock(clock.Now), 10*time.Minute, time.Minute, nil).WithClock(clock.Now)
	mail := &fakeNotifier{}
	bus := event.NewBus(nil)

	svc := NewAuthService(users, otps, issuer, mail, bus, cfg, nil).WithClock(clock.Now)

	return &authFixture{
		svc: svc, otps: otps, users: users, otpDB: otpDB,
		mail: mail, clock: clock, issuer: issuer, bus: bus,
	}
}

// seedUser registers a user and optionally redeems the verification link.
func (f *authFixture) seedUser(t *testing.T, email string, verified bool) model.PublicUser {
	t.Helper()

	res, err := f.svc.Register(context.Background(), model.RegisterRequest{
		Name: "Ann", Email: email, Password: "Passw0rd!",
	}, model.Actor{})
	require.NoError(t, err)

	if verified {
		_, err := f.svc.VerifyEmailByToken(context.Background(), f.mail.last(t, "verify"), model.Actor{})
		require.NoError(t, err)
	}
	return res.User
}
