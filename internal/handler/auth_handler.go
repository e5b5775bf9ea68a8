package handler

import (
	"errors"
	"net/http"
	"time"

	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/internal/validation"
	"rainbow-buyers/pkg/apierror"
)

// sessionUser is the profile returned after a session is established.
type sessionUser struct {
	ID     string     `json:"_id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	Avatar string     `json:"avatar"`
}

func newSessionUser(u model.PublicUser) sessionUser {
	return sessionUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Avatar: u.Avatar}
}

type AuthHandler struct {
	service *service.AuthService
	cookies middleware.Cookies
	resp    *Responder
	now     func() time.Time
}

func NewAuthHandler(service *service.AuthService, cookies middleware.Cookies, resp *Responder) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies, resp: resp, now: time.Now}
}

func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "VALIDATION_ERROR" {
			err = apiErr.WithStatus(http.StatusUnauthorized)
		}
		h.resp.error(w, err)
		return
	}

	res, err := h.service.Register(r.Context(), payload, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	message := "User registered successfully, please verify your email"
	if !res.EmailSent {
		message = "User registered, but the verification email could not be sent"
	}
	h.resp.success(w, http.StatusCreated, message, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), payload.Email, payload.Password, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	if result.OTPRequired {
		h.resp.success(w, http.StatusOK, "OTP sent to your email", model.LoginResponse{OTPRequired: true})
		return
	}

	h.setSession(w, result.Session)
	h.resp.success(w, http.StatusOK, "Login successfully", model.LoginResponse{User: &result.Session.User})
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	if err := h.service.ResendOTP(r.Context(), payload.Email, actorFromRequest(r)); err != nil {
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "OTP sent to your email", nil)
}

func (h *AuthHandler) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyLoginOTPRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	session, err := h.service.VerifyLoginOTP(r.Context(), payload.Email, payload.OTP, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	h.setSession(w, session)
	h.resp.success(w, http.StatusOK, "Login successfully", newSessionUser(session.User))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), payload.Email, actorFromRequest(r)); err != nil {
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "OTP sent to your email", nil)
}

// VerifyOTP is the forgot-password variant: the code is exchanged for a reset token.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyOTPRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	res, err := h.service.VerifyResetOTP(r.Context(), payload.Email, payload.OTP, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "OTP verified successfully", res)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Token, payload.Password, actorFromRequest(r)); err != nil {
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := middleware.CookieValue(r, middleware.RefreshTokenCookie)
	if refresh == "" {
		h.cookies.Clear(w, middleware.AccessTokenCookie, middleware.RefreshTokenCookie)
		h.resp.failure(w, http.StatusUnauthorized, "Refresh token missing", nil)
		return
	}

	session, err := h.service.Refresh(r.Context(), refresh, actorFromRequest(r))
	if err != nil {
		if isUnauthenticated(err) {
			h.cookies.Clear(w, middleware.AccessTokenCookie, middleware.RefreshTokenCookie)
		}
		h.resp.error(w, err)
		return
	}

	h.cookies.Set(w, middleware.AccessTokenCookie, session.AccessToken, session.AccessExpiresAt, h.now())
	h.resp.success(w, http.StatusOK, "Token refreshed successfully", newSessionUser(session.User))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), middleware.AccessToken(r), actorFromRequest(r))
	h.cookies.Clear(w, middleware.AccessTokenCookie, middleware.RefreshTokenCookie)
	h.resp.success(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	raw := middleware.AccessToken(r)
	if raw == "" {
		h.cookies.Clear(w, middleware.AccessTokenCookie)
		h.resp.failure(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	user, err := h.service.Me(r.Context(), raw)
	if err != nil {
		if isUnauthenticated(err) {
			h.cookies.Clear(w, middleware.AccessTokenCookie)
		}
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "User fetched successfully", user)
}

func (h *AuthHandler) VerifyEmailByToken(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyEmailByTokenRequest
	if err := validation.DecodeJSON(w, r, &payload); err != nil {
		h.resp.error(w, err)
		return
	}

	already, err := h.service.VerifyEmailByToken(r.Context(), payload.Token, actorFromRequest(r))
	if err != nil {
		h.resp.error(w, err)
		return
	}

	if already {
		h.resp.success(w, http.StatusOK, "Email already verified", map[string]bool{"alreadyVerified": true})
		return
	}
	h.resp.success(w, http.StatusOK, "Email verified successfully", map[string]bool{"alreadyVerified": false})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, session *model.Session) {
	now := h.now()
	h.cookies.Set(w, middleware.AccessTokenCookie, session.AccessToken, session.AccessExpiresAt, now)
	if session.RefreshToken != "" {
		h.cookies.Set(w, middleware.RefreshTokenCookie, session.RefreshToken, session.RefreshExpiresAt, now)
	}
}
