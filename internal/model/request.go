package model

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyLoginOTPRequest and VerifyOTPRequest accept 4 to 6 characters even
// though issued codes are always 6 digits.
type VerifyLoginOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,min=4,max=6"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,min=4,max=6"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type VerifyEmailByTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Email   string
	Status  string
	Page    int
	Limit   int
}
