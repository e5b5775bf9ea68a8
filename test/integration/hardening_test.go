//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/pkg/authclient"
)

func TestSecurityHeadersOnResponses(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig())

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	require.Equal(t, "strict-origin-when-cross-origin", resp.Header.Get("Referrer-Policy"))
	require.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestAuthRateLimitReturns429(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AuthRateLimitRPM = 2
	server := newServer(t, cfg)

	payload, err := json.Marshal(map[string]string{"email": "nobody@example.com", "password": testPassword})
	require.NoError(t, err)

	for range 2 {
		resp, reqErr := http.Post(server.URL+"/api/authentication/login", "application/json", bytes.NewReader(payload))
		require.NoError(t, reqErr)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp, err := http.Post(server.URL+"/api/authentication/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	health, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	_ = health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRouteGuardRedirects(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig())
	server.seedUser(t, "eve@example.com", model.RoleUser)

	anonymous := noRedirectClient()

	resp, err := anonymous.Get(server.URL + "/account/orders")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, "/auth/login", resp.Header.Get("Location"))

	resp, err = anonymous.Get(server.URL + "/auth/login")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	signedIn := noRedirectClient()
	c, err := authclient.New(server.URL, authclient.WithHTTPClient(signedIn))
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "eve@example.com", testPassword)
	require.NoError(t, err)
	_, err = c.VerifyLoginOTP(context.Background(), "eve@example.com", server.mail.code("eve@example.com"))
	require.NoError(t, err)

	resp, err = signedIn.Get(server.URL + "/auth/login/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = signedIn.Get(server.URL + "/admin")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = signedIn.Get(server.URL + "/account/orders")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
