package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/token"
	"rainbow-buyers/pkg/apierror"
)

func TestRegisterCreatesUnverifiedUserAndSendsLink(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, model.RegisterRequest{Name: " Ann ", Email: "ann@x.com", Password: "Passw0rd!"}, model.Actor{})
	require.NoError(t, err)
	require.True(t, res.EmailSent)
	require.Equal(t, "Ann", res.User.Name)
	require.Equal(t, model.RoleUser, res.User.Role)
	require.False(t, res.User.IsEmailVerified)

	stored, err := f.users.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	require.NotEqual(t, "Passw0rd!", stored.PasswordHash)
	require.Equal(t, 1, f.mail.count("verify"))

	claims, err := f.issuer.Verify(f.mail.last(t, "verify"), token.TypeVerifyEmail)
	require.NoError(t, err)
	require.Equal(t, stored.ID, claims.UserID())
	require.Equal(t, f.clock.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", false)

	_, err := f.svc.Register(context.Background(), model.RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "Passw0rd!"}, model.Actor{})

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "DUPLICATE_FIELD", apiErr.Code)
	require.Equal(t, http.StatusConflict, apiErr.HTTPStatus)
	require.Equal(t, "email", apiErr.Details)
}

func TestRegisterKeepsUserWhenMailFails(t *testing.T) {
	f := newAuthFixture(t)
	f.mail.setFail(true)

	res, err := f.svc.Register(context.Background(), model.RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "Passw0rd!"}, model.Actor{})
	require.NoError(t, err)
	require.False(t, res.EmailSent)

	_, err = f.users.FindByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
}

func TestLoginDoesNotDiscloseAccountExistence(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	_, errMissing := f.svc.Login(ctx, "nobody@x.com", "Passw0rd!", model.Actor{})
	_, errWrong := f.svc.Login(ctx, "ann@x.com", "wrong-password", model.Actor{})

	require.ErrorIs(t, errMissing, model.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, model.ErrInvalidCredentials)
	require.Equal(t, errMissing.Error(), errWrong.Error())
}

func TestLoginUnverifiedResendsVerificationLink(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", false)

	_, err := f.svc.Login(context.Background(), "ann@x.com", "Passw0rd!", model.Actor{})
	require.ErrorIs(t, err, model.ErrEmailNotVerified)
	require.Equal(t, 2, f.mail.count("verify"))
	require.Zero(t, f.mail.count("otp"))
}

func TestOTPLoginHappyPath(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.True(t, res.OTPRequired)
	require.Nil(t, res.Session)

	f.clock.Advance(9 * time.Minute)
	session, err := f.svc.VerifyLoginOTP(ctx, "ann@x.com", f.mail.last(t, "otp"), model.Actor{})
	require.NoError(t, err)
	require.Equal(t, user.ID, session.User.ID)
	require.Equal(t, f.clock.Now().Add(24*time.Hour), session.AccessExpiresAt)
	require.Equal(t, f.clock.Now().Add(7*24*time.Hour), session.RefreshExpiresAt)

	claims, err := f.issuer.Verify(session.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "Ann", claims.Name)
	assert.Equal(t, "ann@x.com", claims.Email)
	assert.Equal(t, model.RoleUser, claims.Role)

	_, err = f.issuer.Verify(session.RefreshToken, token.TypeRefresh)
	require.NoError(t, err)
}

func TestVerifyLoginOTPExpired(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err = f.svc.VerifyLoginOTP(ctx, "ann@x.com", f.mail.last(t, "otp"), model.Actor{})
	require.ErrorIs(t, err, model.ErrInvalidOrExpiredOTP)
}

func TestVerifyLoginOTPUnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.VerifyLoginOTP(context.Background(), "nobody@x.com", "123456", model.Actor{})
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestResendOTP(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", true)
	f.seedUser(t, "bob@x.com", false)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.ResendOTP(ctx, "nobody@x.com", model.Actor{}), model.ErrUserNotFound)
	require.ErrorIs(t, f.svc.ResendOTP(ctx, "bob@x.com", model.Actor{}), model.ErrEmailNotVerified)

	_, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)
	first := f.mail.last(t, "otp")

	require.ErrorIs(t, f.svc.ResendOTP(ctx, "ann@x.com", model.Actor{}), model.ErrOTPCooldown)

	f.clock.Advance(61 * time.Second)
	require.NoError(t, f.svc.ResendOTP(ctx, "ann@x.com", model.Actor{}))
	second := f.mail.last(t, "otp")
	require.Equal(t, 2, f.mail.count("otp"))

	if first != second {
		_, err = f.svc.VerifyLoginOTP(ctx, "ann@x.com", first, model.Actor{})
		require.ErrorIs(t, err, model.ErrInvalidOrExpiredOTP)
	}
	_, err = f.svc.VerifyLoginOTP(ctx, "ann@x.com", second, model.Actor{})
	require.NoError(t, err)
}

func TestResendOTPMailFailureReleasesCooldown(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	f.mail.setFail(true)
	require.ErrorIs(t, f.svc.ResendOTP(ctx, "ann@x.com", model.Actor{}), model.ErrMailDelivery)

	f.mail.setFail(false)
	require.NoError(t, f.svc.ResendOTP(ctx, "ann@x.com", model.Actor{}))
}

func TestDirectLoginWhenOTPDisabled(t *testing.T) {
	f := newAuthFixture(t, func(c *AuthConfig) { c.RequireOTP = false })
	f.seedUser(t, "ann@x.com", true)

	res, err := f.svc.Login(context.Background(), "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)
	require.False(t, res.OTPRequired)
	require.NotNil(t, res.Session)
	require.NotEmpty(t, res.Session.AccessToken)
	require.NotEmpty(t, res.Session.RefreshToken)
	require.Zero(t, f.mail.count("otp"))
}

func TestRefreshAfterAccessExpiry(t *testing.T) {
	f := newAuthFixture(t, func(c *AuthConfig) { c.RequireOTP = false })
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Me(ctx, res.Session.AccessToken)
	require.ErrorIs(t, err, model.ErrTokenExpired)

	refreshed, err := f.svc.Refresh(ctx, res.Session.RefreshToken, model.Actor{})
	require.NoError(t, err)
	require.Empty(t, refreshed.RefreshToken)
	require.Equal(t, f.clock.Now().Add(24*time.Hour), refreshed.AccessExpiresAt)

	me, err := f.svc.Me(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "ann@x.com", me.Email)

	_, err = f.svc.Refresh(ctx, refreshed.AccessToken, model.Actor{})
	require.ErrorIs(t, err, model.ErrTokenInvalid, "an access token cannot be used to refresh")

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, res.Session.RefreshToken, model.Actor{})
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestVerifyEmailByTokenIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", false)
	ctx := context.Background()
	link := f.mail.last(t, "verify")

	already, err := f.svc.VerifyEmailByToken(ctx, link, model.Actor{})
	require.NoError(t, err)
	require.False(t, already)

	already, err = f.svc.VerifyEmailByToken(ctx, link, model.Actor{})
	require.NoError(t, err)
	require.True(t, already)

	_, err = f.svc.VerifyEmailByToken(ctx, "garbage", model.Actor{})
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.VerifyEmailByToken(ctx, link, model.Actor{})
	require.ErrorAs(t, err, &apiErr)
}

func TestVerifyEmailByTokenUnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	claims := token.Claims{Type: token.TypeVerifyEmail, Email: "ghost@x.com"}
	claims.Subject = "ghost"
	signed, _, err := f.issuer.Issue(claims, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.VerifyEmailByToken(context.Background(), signed, model.Actor{})
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t, func(c *AuthConfig) { c.RequireOTP = false })
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.ForgotPassword(ctx, "nobody@x.com", model.Actor{}), model.ErrUserNotFound)
	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com", model.Actor{}))

	reset, err := f.svc.VerifyResetOTP(ctx, "ann@x.com", f.mail.last(t, "reset"), model.Actor{})
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Add(15*time.Minute).Unix(), reset.ExpiresAt)

	require.NoError(t, f.svc.ResetPassword(ctx, reset.ResetToken, "N3wPassword!", model.Actor{}))

	_, err = f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ann@x.com", "N3wPassword!", model.Actor{})
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, reset.ResetToken, "Another1!", model.Actor{})
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr, "reset token must stop working once the password changed")
	require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
}

func TestMeRejectsUnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	signed, _, err := f.issuer.Issue(token.AccessClaims(model.User{ID: "ghost"}), time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Me(context.Background(), signed)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestUpdateAvatarReissuesAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "ann@x.com", true)

	session, err := f.svc.UpdateAvatar(context.Background(), user.ID, "/api/authentication/avatar/"+user.ID, model.Actor{})
	require.NoError(t, err)
	require.Equal(t, "/api/authentication/avatar/"+user.ID, session.User.Avatar)

	claims, err := f.issuer.Verify(session.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	require.Equal(t, session.User.Avatar, claims.Avatar)

	_, err = f.svc.UpdateAvatar(context.Background(), "ghost", "x", model.Actor{})
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestResetCodeCannotOpenSession(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", false)
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com", model.Actor{}))
	code := f.mail.last(t, "reset")

	session, err := f.svc.VerifyLoginOTP(ctx, "ann@x.com", code, model.Actor{})
	require.ErrorIs(t, err, model.ErrEmailNotVerified)
	require.Nil(t, session)

	// The code still belongs to the reset flow.
	_, err = f.svc.VerifyResetOTP(ctx, "ann@x.com", code, model.Actor{})
	require.NoError(t, err)
}

func TestOTPPurposesDoNotCross(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)
	loginCode := f.mail.last(t, "otp")

	_, err = f.svc.VerifyResetOTP(ctx, "ann@x.com", loginCode, model.Actor{})
	require.ErrorIs(t, err, model.ErrInvalidOrExpiredOTP)

	f.clock.Advance(time.Minute + time.Second)
	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com", model.Actor{}))
	resetCode := f.mail.last(t, "reset")
	require.Len(t, f.otpDB.Pending("ann@x.com"), 2)

	_, err = f.svc.VerifyLoginOTP(ctx, "ann@x.com", resetCode, model.Actor{})
	require.ErrorIs(t, err, model.ErrInvalidOrExpiredOTP)

	session, err := f.svc.VerifyLoginOTP(ctx, "ann@x.com", loginCode, model.Actor{})
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
}

func TestSoftDeletedUserGetsNoTokens(t *testing.T) {
	f := newAuthFixture(t, func(c *AuthConfig) { c.RequireOTP = false })
	user := f.seedUser(t, "ann@x.com", true)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.NoError(t, err)
	require.NotNil(t, res.Session)

	require.NoError(t, f.users.SoftDelete(user.ID, f.clock.Now()))

	_, err = f.svc.Login(ctx, "ann@x.com", "Passw0rd!", model.Actor{})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = f.svc.Refresh(ctx, res.Session.RefreshToken, model.Actor{})
	require.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.svc.Me(ctx, res.Session.AccessToken)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	require.ErrorIs(t, f.svc.ForgotPassword(ctx, "ann@x.com", model.Actor{}), model.ErrUserNotFound)
	_, err = f.svc.VerifyLoginOTP(ctx, "ann@x.com", "123456", model.Actor{})
	require.ErrorIs(t, err, model.ErrUserNotFound)
}
