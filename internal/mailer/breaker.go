package mailer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSender stops calling a failing transport for a while so OTP requests
// fail fast instead of waiting on timeouts.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSender(name string, next Sender, maxFailures uint32, openFor time.Duration, logger *slog.Logger) *BreakerSender {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFailures == 0 {
		maxFailures = 1
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("mail circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerSender{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Send(ctx, msg)
	})
	return err
}
