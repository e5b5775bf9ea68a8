// Package token mints and verifies the HS256 tokens used for sessions,
// email verification links and password resets.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rainbow-buyers/internal/model"
)

type Type string

const (
	TypeAccess        Type = "access"
	TypeRefresh       Type = "refresh"
	TypeVerifyEmail   Type = "verify_email"
	TypePasswordReset Type = "password_reset"
)

var (
	ErrExpired = model.ErrTokenExpired
	ErrInvalid = model.ErrTokenInvalid
)

// Claims is the payload carried by every token. Only the fields relevant to a
// token's Type are populated; the subject is always the user ID.
type Claims struct {
	Type                Type       `json:"typ"`
	Name                string     `json:"name,omitempty"`
	Email               string     `json:"email,omitempty"`
	Role                model.Role `json:"role,omitempty"`
	Avatar              string     `json:"avatar,omitempty"`
	PasswordFingerprint string     `json:"pwh,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

// AccessClaims builds the access token payload from a user snapshot.
func AccessClaims(user model.User) Claims {
	return Claims{
		Type:             TypeAccess,
		Name:             user.Name,
		Email:            user.Email,
		Role:             user.Role,
		Avatar:           user.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID},
	}
}

func RefreshClaims(userID string) Claims {
	return Claims{
		Type:             TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}

	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	clone := *i
	clone.now = now
	return &clone
}

// Issue signs claims with an absolute expiry of now+ttl and returns the token
// together with the expiry embedded in it (second precision).
func (i *Issuer) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if claims.Subject == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := i.now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.Type, err)
	}

	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm and expiry. An empty expected type accepts
// any token type. Failures are either ErrExpired or ErrInvalid.
func (i *Issuer) Verify(tokenString string, expected Type) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalid
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	if expected != "" && claims.Type != expected {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}
