// Package authclient talks to the authentication API the way the storefront
// does. The cookie jar is the source of truth for the session; the cached
// profile is only a mirror of the last /me answer and is dropped on 401.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	apiPrefix         = "/api/authentication"
	accessTokenCookie = "access_token"
)

var ErrUnauthenticated = errors.New("not authenticated")

// Error is a failed API call, decoded from the response envelope.
type Error struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.StatusCode, e.Message)
}

type User struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Avatar          string    `json:"avatar"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	user *User
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}

	return c, nil
}

func (c *Client) Register(ctx context.Context, name string, email string, password string) (*User, error) {
	var data struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/register", map[string]string{"name": name, "email": email, "password": password}, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// VerifyEmail confirms an address from the link token. It reports true when
// the address had already been verified.
func (c *Client) VerifyEmail(ctx context.Context, linkToken string) (alreadyVerified bool, err error) {
	var data struct {
		AlreadyVerified bool `json:"alreadyVerified"`
	}
	if err := c.call(ctx, http.MethodPost, "/verifyemailbytoken", map[string]string{"token": linkToken}, &data); err != nil {
		return false, err
	}
	return data.AlreadyVerified, nil
}

// Login submits credentials. It reports whether an OTP was emailed; when it
// was not, the session cookies are already set and the profile is cached.
func (c *Client) Login(ctx context.Context, email string, password string) (otpRequired bool, err error) {
	var data struct {
		OTPRequired bool  `json:"otpRequired"`
		User        *User `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, &data); err != nil {
		return false, err
	}

	if data.User != nil {
		c.setUser(data.User)
	}
	return data.OTPRequired, nil
}

func (c *Client) VerifyLoginOTP(ctx context.Context, email string, code string) (*User, error) {
	var user User
	if err := c.call(ctx, http.MethodPost, "/verify-login-otp", map[string]string{"email": email, "otp": code}, &user); err != nil {
		return nil, err
	}
	c.setUser(&user)
	return &user, nil
}

func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/resend-otp", map[string]string{"email": email}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, http.MethodPost, "/forgot-password", map[string]string{"email": email}, nil)
}

// VerifyResetOTP exchanges a reset code for the token ResetPassword expects.
func (c *Client) VerifyResetOTP(ctx context.Context, email string, code string) (string, error) {
	var data struct {
		ResetToken string `json:"resetToken"`
	}
	if err := c.call(ctx, http.MethodPost, "/verify-otp", map[string]string{"email": email, "otp": code}, &data); err != nil {
		return "", err
	}
	return data.ResetToken, nil
}

func (c *Client) ResetPassword(ctx context.Context, resetToken string, password string) error {
	return c.call(ctx, http.MethodPost, "/reset-password", map[string]string{"token": resetToken, "password": password}, nil)
}

// Me reconciles the cached profile with the server.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	c.setUser(&user)
	return &user, nil
}

// CachedUser returns the last profile seen, without a round trip.
func (c *Client) CachedUser() (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil, false
	}
	u := *c.user
	return &u, true
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/refresh", nil, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	defer c.Invalidate()
	return c.call(ctx, http.MethodPost, "/logout", nil, nil)
}

func (c *Client) Invalidate() {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
}

// AccessTokenExpiry reads exp from the access cookie without verifying the
// signature; the server remains the authority.
func (c *Client) AccessTokenExpiry() (time.Time, bool) {
	for _, cookie := range c.http.Jar.Cookies(c.base) {
		if cookie.Name != accessTokenCookie || cookie.Value == "" {
			continue
		}

		claims := &jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(cookie.Value, claims); err != nil {
			return time.Time{}, false
		}
		if claims.ExpiresAt == nil {
			return time.Time{}, false
		}
		return claims.ExpiresAt.Time, true
	}
	return time.Time{}, false
}

func (c *Client) setUser(u *User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	target := c.base.JoinPath(apiPrefix, path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.Invalidate()
		return errors.WithStack(&unauthenticated{message: env.Message})
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: env.Message}
		if secs, convErr := time.ParseDuration(resp.Header.Get("Retry-After") + "s"); convErr == nil {
			apiErr.RetryAfter = secs
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrapf(err, "decode %s data", path)
		}
	}
	return nil
}

type unauthenticated struct {
	message string
}

func (e *unauthenticated) Error() string {
	return "not authenticated: " + e.message
}

func (e *unauthenticated) Is(target error) bool {
	return target == ErrUnauthenticated
}
