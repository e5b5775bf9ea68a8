package model

// APIResponse is the single envelope every JSON endpoint answers with.
type APIResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type LoginResponse struct {
	OTPRequired bool        `json:"otpRequired"`
	User        *PublicUser `json:"user,omitempty"`
}

type RegisterResponse struct {
	User      PublicUser `json:"user"`
	EmailSent bool       `json:"emailSent"`
}

type ResetTokenResponse struct {
	ResetToken string `json:"resetToken"`
	ExpiresAt  int64  `json:"expiresAt"`
}

type AuditPage struct {
	Entries []AuditEntry `json:"entries"`
	Meta    Meta         `json:"meta"`
}
