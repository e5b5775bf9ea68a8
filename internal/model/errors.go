package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")

	// OTP related errors
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrOTPCooldown         = errors.New("otp cooldown active")

	// Token related errors
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Delivery errors
	ErrMailDelivery = errors.New("mail delivery failed")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
