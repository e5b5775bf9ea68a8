//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAPISpecAndSwaggerUI(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig())

	specResp, err := http.Get(server.URL + "/openapi.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = specResp.Body.Close() })
	require.Equal(t, http.StatusOK, specResp.StatusCode)
	require.Equal(t, "application/yaml", specResp.Header.Get("Content-Type"))

	specBytes, err := io.ReadAll(specResp.Body)
	require.NoError(t, err)
	specText := string(specBytes)
	require.Contains(t, specText, "openapi: 3.0.3")
	require.Contains(t, specText, "/api/authentication/verify-login-otp")
	require.Contains(t, specText, "/api/authentication/refresh")
	require.Contains(t, specText, "/api/admin/audit")

	swaggerResp, err := http.Get(server.URL + "/swagger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = swaggerResp.Body.Close() })
	require.Equal(t, http.StatusOK, swaggerResp.StatusCode)
	require.Contains(t, swaggerResp.Header.Get("Content-Type"), "text/html")

	swaggerBytes, err := io.ReadAll(swaggerResp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(swaggerBytes), "SwaggerUIBundle"))
}
