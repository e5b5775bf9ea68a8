package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/pkg/apierror"
)

func decode(t *testing.T, body string, dst any) *apierror.APIError {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSON(httptest.NewRecorder(), r, dst)
	if err == nil {
		return nil
	}
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr
}

func TestDecodeJSONValid(t *testing.T) {
	var req model.RegisterRequest
	require.Nil(t, decode(t, `{"name":"Ann","email":"ann@x.com","password":"Passw0rd!"}`, &req))
	require.Equal(t, "ann@x.com", req.Email)
}

func TestDecodeJSONReportsIssuesByJSONName(t *testing.T) {
	var req model.RegisterRequest
	apiErr := decode(t, `{"name":"A","email":"not-an-email","password":"short"}`, &req)
	require.NotNil(t, apiErr)
	require.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)

	issues := apiErr.Data.(map[string]any)["issues"].([]apierror.Issue)
	fields := map[string]string{}
	for _, issue := range issues {
		fields[issue.Field] = issue.Rule
	}
	require.Equal(t, map[string]string{"name": "min", "email": "email", "password": "min"}, fields)
}

func TestDecodeJSONOTPRules(t *testing.T) {
	var login model.VerifyLoginOTPRequest
	require.Nil(t, decode(t, `{"email":"ann@x.com","otp":"123456"}`, &login))
	require.Nil(t, decode(t, `{"email":"ann@x.com","otp":"1234"}`, &login))
	require.NotNil(t, decode(t, `{"email":"ann@x.com","otp":"123"}`, &login))
	require.NotNil(t, decode(t, `{"email":"ann@x.com","otp":"1234567"}`, &login))

	var reset model.VerifyOTPRequest
	require.Nil(t, decode(t, `{"email":"ann@x.com","otp":"1234"}`, &reset))
	require.NotNil(t, decode(t, `{"email":"ann@x.com","otp":"123"}`, &reset))
}

func TestDecodeJSONMalformed(t *testing.T) {
	var req model.LoginRequest
	require.Equal(t, "BAD_REQUEST", decode(t, `{"email":`, &req).Code)
	require.Equal(t, "BAD_REQUEST", decode(t, ``, &req).Code)
}
