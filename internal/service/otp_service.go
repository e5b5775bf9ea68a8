package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"rainbow-buyers/internal/model"
)

const (
	otpMin = 100000
	otpMax = 999999
)

type OTPStore interface {
	Replace(ctx context.Context, challenge model.OTPChallenge) error
	Consume(ctx context.Context, email string, purpose model.OTPPurpose, code string, now time.Time) (model.OTPChallenge, error)
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type Cooldown interface {
	Acquire(ctx context.Context, key string, window time.Duration) (time.Duration, bool, error)
	Release(ctx context.Context, key string) error
}

// CooldownError reports that a new code was requested too soon.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp cooldown active, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == model.ErrOTPCooldown
}

type OTPService struct {
	store          OTPStore
	cooldown       Cooldown
	ttl            time.Duration
	cooldownWindow time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

func NewOTPService(store OTPStore, cooldown Cooldown, ttl time.Duration, cooldownWindow time.Duration, logger *slog.Logger) *OTPService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPService{
		store:          store,
		cooldown:       cooldown,
		ttl:            ttl,
		cooldownWindow: cooldownWindow,
		now:            time.Now,
		logger:         logger,
	}
}

func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	clone := *s
	clone.now = now
	return &clone
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Generate draws a code uniformly from [100000, 999999].
func (s *OTPService) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", errors.Wrap(err, "generate otp")
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// Issue replaces every outstanding code for email and purpose with a fresh one.
// The cooldown is shared by all purposes. The caller must deliver the code
// before reporting success.
func (s *OTPService) Issue(ctx context.Context, email string, purpose model.OTPPurpose) (model.OTPChallenge, error) {
	if s.cooldown != nil {
		wait, ok, err := s.cooldown.Acquire(ctx, cooldownKey(email), s.cooldownWindow)
		if err != nil {
			return model.OTPChallenge{}, errors.Wrap(err, "acquire otp cooldown")
		}
		if !ok {
			return model.OTPChallenge{}, &CooldownError{RetryAfter: wait}
		}
	}

	code, err := s.Generate()
	if err != nil {
		s.ReleaseCooldown(ctx, email)
		return model.OTPChallenge{}, err
	}

	now := s.now().UTC()
	challenge := model.OTPChallenge{
		ID:        uuid.NewString(),
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.store.Replace(ctx, challenge); err != nil {
		s.ReleaseCooldown(ctx, email)
		return model.OTPChallenge{}, errors.Wrap(err, "persist otp")
	}

	return challenge, nil
}

// Verify consumes the code. Wrong, expired and missing codes, and codes issued
// for another purpose, all fail with model.ErrInvalidOrExpiredOTP.
func (s *OTPService) Verify(ctx context.Context, email string, purpose model.OTPPurpose, code string) error {
	_, err := s.store.Consume(ctx, email, purpose, code, s.now().UTC())
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrInvalidOrExpiredOTP) {
		return model.ErrInvalidOrExpiredOTP
	}
	return errors.Wrap(err, "verify otp")
}

// ReleaseCooldown lets the user ask again right away, used when delivery failed.
func (s *OTPService) ReleaseCooldown(ctx context.Context, email string) {
	if s.cooldown == nil {
		return
	}
	if err := s.cooldown.Release(ctx, cooldownKey(email)); err != nil {
		s.logger.Warn("release otp cooldown failed", "email", email, "error", err)
	}
}

// StartCleanupTicker purges expired codes until ctx is done.
func (s *OTPService) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.CleanExpired(ctx, s.now().UTC())
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Error("otp cleanup failed", "error", err)
					}
					continue
				}
				if removed > 0 {
					s.logger.Info("expired otps cleaned", "count", removed)
				}
			}
		}
	}()
}

func cooldownKey(email string) string {
	return "otp:" + email
}
