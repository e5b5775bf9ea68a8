package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/token"
	"rainbow-buyers/internal/util"
	"rainbow-buyers/pkg/apierror"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error
	UpdateAvatar(ctx context.Context, id string, avatar string, at time.Time) error
}

// Notifier delivers the emails the flows depend on.
type Notifier interface {
	SendLoginOTP(ctx context.Context, to string, name string, code string, ttl time.Duration) error
	SendPasswordResetOTP(ctx context.Context, to string, name string, code string, ttl time.Duration) error
	SendVerificationLink(ctx context.Context, to string, name string, token string, ttl time.Duration) error
}

type AuthConfig struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	VerifyEmailTTL time.Duration
	ResetTTL       time.Duration
	RequireOTP     bool
	BcryptCost     int
}

var (
	errInvalidVerificationToken = apierror.New("INVALID_TOKEN", "Invalid or expired verification token", "", http.StatusBadRequest)
	errInvalidResetToken        = apierror.New("INVALID_TOKEN", "Invalid or expired reset token", "", http.StatusBadRequest)
)

type AuthService struct {
	users  UserStore
	otps   *OTPService
	issuer *token.Issuer
	mail   Notifier
	bus    event.Bus
	cfg    AuthConfig
	now    func() time.Time
	logger *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(users UserStore, otps *OTPService, issuer *token.Issuer, mail Notifier, bus event.Bus, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		otps:   otps,
		issuer: issuer,
		mail:   mail,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock makes the service read time from now. Callers pass the same clock
// to the token issuer and OTP service.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, actor model.Actor) (model.RegisterResponse, error) {
	name, err := util.SanitizeDisplayName(req.Name)
	if err != nil {
		return model.RegisterResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return model.RegisterResponse{}, errors.Wrap(err, "hash password")
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        util.NormalizeEmail(req.Email),
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			return model.RegisterResponse{}, apiErr
		}
		return model.RegisterResponse{}, errors.Wrap(err, "create user")
	}

	s.publish(event.TypeUserRegistered, user.ID, user.Email, actor, event.StatusSuccess, "")

	sent := true
	if err := s.sendVerificationLink(ctx, user); err != nil {
		sent = false
		s.logger.Warn("verification email not sent after registration", "user_id", user.ID, "error", err)
	}

	return model.RegisterResponse{User: user.Public(), EmailSent: sent}, nil
}

// Login checks the password. Verified users either get an OTP challenge or,
// when OTP is disabled, a session straight away.
func (s *AuthService) Login(ctx context.Context, email string, password string, actor model.Actor) (model.LoginResult, error) {
	email = util.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.LoginResult{}, err
		}
		s.burnCompare(password)
		s.publish(event.TypeLoginFailed, "", email, actor, event.StatusFailure, "unknown email")
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.publish(event.TypeLoginFailed, user.ID, email, actor, event.StatusFailure, "wrong password")
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		if err := s.sendVerificationLink(ctx, user); err != nil {
			s.logger.Warn("verification email not re-sent", "user_id", user.ID, "error", err)
		}
		s.publish(event.TypeLoginFailed, user.ID, email, actor, event.StatusFailure, "email not verified")
		return model.LoginResult{}, model.ErrEmailNotVerified
	}

	if s.cfg.RequireOTP {
		if err := s.issueOTP(ctx, user, model.OTPPurposeLogin, s.mail.SendLoginOTP, actor); err != nil {
			return model.LoginResult{}, err
		}
		return model.LoginResult{OTPRequired: true}, nil
	}

	session, err := s.newSession(user)
	if err != nil {
		return model.LoginResult{}, err
	}
	s.publish(event.TypeLoginSucceeded, user.ID, email, actor, event.StatusSuccess, "password")
	return model.LoginResult{Session: session}, nil
}

func (s *AuthService) ResendOTP(ctx context.Context, email string, actor model.Actor) error {
	email = util.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.IsEmailVerified {
		return model.ErrEmailNotVerified
	}
	return s.issueOTP(ctx, user, model.OTPPurposeLogin, s.mail.SendLoginOTP, actor)
}

func (s *AuthService) VerifyLoginOTP(ctx context.Context, email string, code string, actor model.Actor) (*model.Session, error) {
	email = util.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.IsEmailVerified {
		s.publish(event.TypeOTPRejected, user.ID, email, actor, event.StatusFailure, "email not verified")
		return nil, model.ErrEmailNotVerified
	}

	if err := s.otps.Verify(ctx, email, model.OTPPurposeLogin, code); err != nil {
		if errors.Is(err, model.ErrInvalidOrExpiredOTP) {
			s.publish(event.TypeOTPRejected, user.ID, email, actor, event.StatusFailure, "login")
		}
		return nil, err
	}

	session, err := s.newSession(user)
	if err != nil {
		return nil, err
	}

	s.publish(event.TypeOTPVerified, user.ID, email, actor, event.StatusSuccess, "login")
	s.publish(event.TypeLoginSucceeded, user.ID, email, actor, event.StatusSuccess, "otp")
	return session, nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string, actor model.Actor) error {
	email = util.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.issueOTP(ctx, user, model.OTPPurposePasswordReset, s.mail.SendPasswordResetOTP, actor)
}

// VerifyResetOTP consumes a password-reset code and returns a reset token that
// stays valid only while the password is unchanged.
func (s *AuthService) VerifyResetOTP(ctx context.Context, email string, code string, actor model.Actor) (model.ResetTokenResponse, error) {
	email = util.NormalizeEmail(email)

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return model.ResetTokenResponse{}, err
	}

	if err := s.otps.Verify(ctx, email, model.OTPPurposePasswordReset, code); err != nil {
		if errors.Is(err, model.ErrInvalidOrExpiredOTP) {
			s.publish(event.TypeOTPRejected, user.ID, email, actor, event.StatusFailure, "password reset")
		}
		return model.ResetTokenResponse{}, err
	}

	claims := token.Claims{
		Type:                token.TypePasswordReset,
		Email:               user.Email,
		PasswordFingerprint: passwordFingerprint(user.PasswordHash),
	}
	claims.Subject = user.ID

	signed, exp, err := s.issuer.Issue(claims, s.cfg.ResetTTL)
	if err != nil {
		return model.ResetTokenResponse{}, errors.WithStack(err)
	}

	s.publish(event.TypeOTPVerified, user.ID, email, actor, event.StatusSuccess, "password reset")
	return model.ResetTokenResponse{ResetToken: signed, ExpiresAt: exp.Unix()}, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, resetToken string, password string, actor model.Actor) error {
	claims, err := s.issuer.Verify(resetToken, token.TypePasswordReset)
	if err != nil {
		return errInvalidResetToken
	}

	user, err := s.findByID(ctx, claims.UserID())
	if err != nil {
		return err
	}

	if claims.PasswordFingerprint != passwordFingerprint(user.PasswordHash) {
		return errInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), s.now().UTC()); err != nil {
		return errors.Wrap(err, "update password")
	}

	s.publish(event.TypePasswordReset, user.ID, user.Email, actor, event.StatusSuccess, "")
	return nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, actor model.Actor) (*model.Session, error) {
	claims, err := s.issuer.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		s.publish(event.TypeTokenRefreshed, "", "", actor, event.StatusFailure, err.Error())
		return nil, err
	}

	user, err := s.findByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}

	access, accessExp, err := s.issuer.Issue(token.AccessClaims(user), s.cfg.AccessTTL)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s.publish(event.TypeTokenRefreshed, user.ID, user.Email, actor, event.StatusSuccess, "")
	return &model.Session{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		User:            user.Public(),
	}, nil
}

// Logout never fails; the token is only read to attribute the audit entry.
func (s *AuthService) Logout(_ context.Context, accessToken string, actor model.Actor) {
	userID, email := actor.UserID, ""
	if claims, err := s.issuer.Verify(accessToken, token.TypeAccess); err == nil {
		userID, email = claims.UserID(), claims.Email
	}
	s.publish(event.TypeLogout, userID, email, actor, event.StatusSuccess, "")
}

// Me resolves the profile behind an access token from the store, so role or
// avatar changes show up before the token is re-minted.
func (s *AuthService) Me(ctx context.Context, accessToken string) (model.PublicUser, error) {
	claims, err := s.issuer.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return model.PublicUser{}, err
	}

	user, err := s.findByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, model.ErrUnauthorized
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// VerifyEmailByToken redeems a verification link. Redeeming it again reports
// alreadyVerified instead of failing.
func (s *AuthService) VerifyEmailByToken(ctx context.Context, verifyToken string, actor model.Actor) (bool, error) {
	claims, err := s.issuer.Verify(verifyToken, token.TypeVerifyEmail)
	if err != nil {
		return false, errInvalidVerificationToken
	}

	user, err := s.findByID(ctx, claims.UserID())
	if err != nil {
		return false, err
	}

	if claims.Email != user.Email {
		return false, errInvalidVerificationToken
	}

	if user.IsEmailVerified {
		return true, nil
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID, s.now().UTC()); err != nil {
		return false, errors.Wrap(err, "mark email verified")
	}

	s.publish(event.TypeEmailVerified, user.ID, user.Email, actor, event.StatusSuccess, "")
	return false, nil
}

// UpdateAvatar stores the new avatar reference and re-mints the access token so
// its snapshot matches.
func (s *AuthService) UpdateAvatar(ctx context.Context, userID string, avatar string, actor model.Actor) (*model.Session, error) {
	if err := s.users.UpdateAvatar(ctx, userID, avatar, s.now().UTC()); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, errors.Wrap(err, "update avatar")
	}

	user, err := s.findByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}

	access, accessExp, err := s.issuer.Issue(token.AccessClaims(user), s.cfg.AccessTTL)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s.publish(event.TypeAvatarUpdated, user.ID, user.Email, actor, event.StatusSuccess, avatar)
	return &model.Session{AccessToken: access, AccessExpiresAt: accessExp, User: user.Public()}, nil
}

// findByEmail and findByID report soft-deleted accounts as model.ErrUserNotFound,
// so no flow issues codes or tokens for them.
func (s *AuthService) findByEmail(ctx context.Context, email string) (model.User, error) {
	return activeUser(s.users.FindByEmail(ctx, email))
}

func (s *AuthService) findByID(ctx context.Context, id string) (model.User, error) {
	return activeUser(s.users.FindByID(ctx, id))
}

func activeUser(user model.User, err error) (model.User, error) {
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.User{}, model.ErrUserNotFound
		}
		return model.User{}, errors.Wrap(err, "find user")
	}
	if user.DeletedAt != nil {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

type codeSender func(ctx context.Context, to string, name string, code string, ttl time.Duration) error

func (s *AuthService) issueOTP(ctx context.Context, user model.User, purpose model.OTPPurpose, send codeSender, actor model.Actor) error {
	challenge, err := s.otps.Issue(ctx, user.Email, purpose)
	if err != nil {
		return err
	}

	if err := send(ctx, user.Email, user.Name, challenge.Code, s.otps.TTL()); err != nil {
		s.otps.ReleaseCooldown(ctx, user.Email)
		s.logger.Error("otp email failed", "user_id", user.ID, "error", err)
		s.publish(event.TypeOTPIssued, user.ID, user.Email, actor, event.StatusFailure, "delivery failed")
		return errors.Wrap(model.ErrMailDelivery, err.Error())
	}

	s.publish(event.TypeOTPIssued, user.ID, user.Email, actor, event.StatusSuccess, "")
	return nil
}

func (s *AuthService) sendVerificationLink(ctx context.Context, user model.User) error {
	claims := token.Claims{Type: token.TypeVerifyEmail, Email: user.Email}
	claims.Subject = user.ID

	signed, _, err := s.issuer.Issue(claims, s.cfg.VerifyEmailTTL)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := s.mail.SendVerificationLink(ctx, user.Email, user.Name, signed, s.cfg.VerifyEmailTTL); err != nil {
		return errors.Wrap(model.ErrMailDelivery, err.Error())
	}

	s.publish(event.TypeEmailVerification, user.ID, user.Email, model.Actor{}, event.StatusSuccess, "")
	return nil
}

func (s *AuthService) newSession(user model.User) (*model.Session, error) {
	access, accessExp, err := s.issuer.Issue(token.AccessClaims(user), s.cfg.AccessTTL)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	refresh, refreshExp, err := s.issuer.Issue(token.RefreshClaims(user.ID), s.cfg.RefreshTTL)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &model.Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             user.Public(),
	}, nil
}

// burnCompare spends the same bcrypt work for unknown emails as for known ones.
func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cfg.BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func (s *AuthService) publish(typ event.Type, userID string, email string, actor model.Actor, status string, detail string) {
	if s.bus == nil {
		return
	}
	if userID == "" {
		userID = actor.UserID
	}
	s.bus.Publish(event.Event{
		Type:      typ,
		Timestamp: s.now().UTC(),
		ActorID:   userID,
		Email:     email,
		IP:        actor.IP,
		Status:    status,
		Detail:    detail,
	})
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:16])
}
