//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/pkg/authclient"
)

func TestRegisterVerifyAndLogin(t *testing.T) {
	server := newServer(t, testConfig())
	ctx := context.Background()

	c, err := authclient.New(server.URL)
	require.NoError(t, err)

	user, err := c.Register(ctx, "  Ann   Buyer ", "Ann@Example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, "Ann Buyer", user.Name)
	require.Equal(t, "ann@example.com", user.Email)
	require.False(t, user.IsEmailVerified)

	_, err = c.Login(ctx, "ann@example.com", testPassword)
	var apiErr *authclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "Please verify your email", apiErr.Message)

	link := server.mail.link("ann@example.com")
	require.NotEmpty(t, link)

	already, err := c.VerifyEmail(ctx, link)
	require.NoError(t, err)
	require.False(t, already)
	already, err = c.VerifyEmail(ctx, link)
	require.NoError(t, err)
	require.True(t, already)

	signed := server.signIn(t, "ann@example.com")
	me, err := signed.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ann Buyer", me.Name)
	require.True(t, me.IsEmailVerified)
}

func TestSessionRefreshAndLogout(t *testing.T) {
	server := newServer(t, testConfig())
	server.seedUser(t, "bob@example.com", model.RoleUser)
	ctx := context.Background()

	c := server.signIn(t, "bob@example.com")

	before, ok := c.AccessTokenExpiry()
	require.True(t, ok)

	require.NoError(t, c.Refresh(ctx))
	after, ok := c.AccessTokenExpiry()
	require.True(t, ok)
	require.False(t, after.Before(before))

	require.NoError(t, c.Logout(ctx))
	_, err := c.Me(ctx)
	require.ErrorIs(t, err, authclient.ErrUnauthenticated)
	require.ErrorIs(t, c.Refresh(ctx), authclient.ErrUnauthenticated)
}

func TestPasswordReset(t *testing.T) {
	cfg := testConfig()
	cfg.OTPResendCooldown = 0
	server := newServer(t, cfg)
	server.seedUser(t, "cara@example.com", model.RoleUser)
	ctx := context.Background()

	c, err := authclient.New(server.URL)
	require.NoError(t, err)

	require.NoError(t, c.ForgotPassword(ctx, "cara@example.com"))
	resetToken, err := c.VerifyResetOTP(ctx, "cara@example.com", server.mail.code("cara@example.com"))
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	require.NoError(t, c.ResetPassword(ctx, resetToken, "NewPassword456!"))

	_, err = c.Login(ctx, "cara@example.com", testPassword)
	var apiErr *authclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid email or password", apiErr.Message)

	otpRequired, err := c.Login(ctx, "cara@example.com", "NewPassword456!")
	require.NoError(t, err)
	require.True(t, otpRequired)
}

func TestAdminAuditRequiresAdminRole(t *testing.T) {
	server := newServer(t, testConfig())
	server.seedUser(t, "user@example.com", model.RoleUser)
	server.seedUser(t, "admin@example.com", model.RoleAdmin)

	anonymous, err := http.Get(server.URL + "/api/admin/audit")
	require.NoError(t, err)
	t.Cleanup(func() { _ = anonymous.Body.Close() })
	require.Equal(t, http.StatusUnauthorized, anonymous.StatusCode)

	for email, want := range map[string]int{
		"user@example.com":  http.StatusForbidden,
		"admin@example.com": http.StatusOK,
	} {
		hc := &http.Client{}
		c, err := authclient.New(server.URL, authclient.WithHTTPClient(hc))
		require.NoError(t, err)
		_, err = c.Login(context.Background(), email, testPassword)
		require.NoError(t, err)
		_, err = c.VerifyLoginOTP(context.Background(), email, server.mail.code(email))
		require.NoError(t, err)

		resp, err := hc.Get(server.URL + "/api/admin/audit?action=login&status=success")
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, want, resp.StatusCode, email)
	}
}

func TestResendOTPCooldown(t *testing.T) {
	server := newServer(t, testConfig())
	server.seedUser(t, "dan@example.com", model.RoleUser)
	ctx := context.Background()

	c, err := authclient.New(server.URL)
	require.NoError(t, err)

	otpRequired, err := c.Login(ctx, "dan@example.com", testPassword)
	require.NoError(t, err)
	require.True(t, otpRequired)
	first := server.mail.code("dan@example.com")

	err = c.ResendOTP(ctx, "dan@example.com")
	var apiErr *authclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Positive(t, apiErr.RetryAfter)
	require.Equal(t, first, server.mail.code("dan@example.com"))

	_, err = c.VerifyLoginOTP(ctx, "dan@example.com", first)
	require.NoError(t, err)
}
