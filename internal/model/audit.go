package model

import "time"

type AuditEntry struct {
	ID         string    `json:"id" bson:"_id"`
	Action     string    `json:"action" bson:"action"`
	OccurredAt time.Time `json:"occurredAt" bson:"occurredAt"`
	ActorID    string    `json:"actorId,omitempty" bson:"actorId,omitempty"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	IP         string    `json:"ip,omitempty" bson:"ip,omitempty"`
	Status     string    `json:"status" bson:"status"`
	Detail     string    `json:"detail,omitempty" bson:"detail,omitempty"`
}

// Actor identifies who triggered an operation, for the audit trail.
type Actor struct {
	UserID string
	IP     string
}
