package event

import "time"

type Type string

const (
	TypeUserRegistered    Type = "user.registered"
	TypeEmailVerification Type = "user.email_verification_sent"
	TypeEmailVerified     Type = "user.email_verified"
	TypeAvatarUpdated     Type = "user.avatar_updated"
	TypeLoginSucceeded    Type = "auth.login"
	TypeLoginFailed       Type = "auth.login_failed"
	TypeOTPIssued         Type = "auth.otp_issued"
	TypeOTPVerified       Type = "auth.otp_verified"
	TypeOTPRejected       Type = "auth.otp_rejected"
	TypeTokenRefreshed    Type = "auth.refresh"
	TypeLogout            Type = "auth.logout"
	TypePasswordReset     Type = "auth.password_reset"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
