package model

import "time"

// OTPPurpose scopes a code to the flow that issued it. A code is only
// redeemable by the flow with the same purpose.
type OTPPurpose string

const (
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

type OTPChallenge struct {
	ID        string     `json:"id" bson:"_id"`
	Email     string     `json:"email" bson:"email"`
	Purpose   OTPPurpose `json:"purpose" bson:"purpose"`
	Code      string     `json:"-" bson:"otp"`
	ExpiresAt time.Time  `json:"expiresAt" bson:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
}

func (c OTPChallenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
