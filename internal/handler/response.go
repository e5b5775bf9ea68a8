package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/pkg/apierror"
)

// Responder writes the {success, statusCode, message, data} envelope. In
// development the stack of unexpected errors is returned in data.stack.
type Responder struct {
	logger *slog.Logger
	dev    bool
}

func NewResponder(logger *slog.Logger, development bool) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{logger: logger, dev: development}
}

func writeJSON(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (rs *Responder) success(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, model.APIResponse{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func (rs *Responder) failure(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, model.APIResponse{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func (rs *Responder) error(w http.ResponseWriter, err error) {
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		seconds := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
		rs.failure(w, http.StatusTooManyRequests,
			fmt.Sprintf("Please wait %d seconds before requesting another OTP", max(seconds, 1)), nil)
		return
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		rs.failure(w, apiErr.HTTPStatus, apiErr.Message, apiErr.Data)
		return
	}

	status, message := classify(err)
	if status != http.StatusInternalServerError {
		rs.failure(w, status, message, nil)
		return
	}

	rs.logger.Error("unhandled error", "error", err.Error())

	var data any
	if rs.dev {
		data = map[string]string{
			"error": err.Error(),
			"stack": fmt.Sprintf("%+v", err),
		}
	}
	rs.failure(w, status, message, data)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, model.ErrEmailNotVerified):
		return http.StatusBadRequest, "Please verify your email"
	case errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, model.ErrUserAlreadyExists):
		return http.StatusConflict, "User already exists"
	case errors.Is(err, model.ErrInvalidOrExpiredOTP):
		return http.StatusBadRequest, "Invalid or expired OTP"
	case errors.Is(err, model.ErrOTPCooldown):
		return http.StatusTooManyRequests, "Please wait before requesting another OTP"
	case errors.Is(err, model.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, model.ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, model.ErrMailDelivery):
		return http.StatusBadRequest, "Failed to send email, please try again later"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, model.ErrTokenExpired) ||
		errors.Is(err, model.ErrTokenInvalid) ||
		errors.Is(err, model.ErrUnauthorized)
}
