package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role may enter admin-prefixed routes.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func ParseRole(raw string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return RoleUser
	}
	return role
}

type User struct {
	ID              string     `json:"_id" bson:"_id"`
	Name            string     `json:"name" bson:"name"`
	Email           string     `json:"email" bson:"email"`
	PasswordHash    string     `json:"-" bson:"password"`
	Role            Role       `json:"role" bson:"role"`
	IsEmailVerified bool       `json:"isEmailVerified" bson:"isEmailVerified"`
	Avatar          string     `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Phone           string     `json:"phone,omitempty" bson:"phone,omitempty"`
	Address         string     `json:"address,omitempty" bson:"address,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// PublicUser is the projection returned to clients; it never carries the password hash.
type PublicUser struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	Avatar          string    `json:"avatar"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	Phone           string    `json:"phone,omitempty"`
	Address         string    `json:"address,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		Avatar:          u.Avatar,
		IsEmailVerified: u.IsEmailVerified,
		Phone:           u.Phone,
		Address:         u.Address,
		CreatedAt:       u.CreatedAt,
	}
}

// Session is the materialized token pair handed to the transport layer as cookies.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             PublicUser
}

type LoginResult struct {
	OTPRequired bool
	Session     *Session
}
