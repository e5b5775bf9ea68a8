package authclient

import (
	"context"
	"time"
)

const (
	DefaultRefreshInterval  = 5 * time.Minute
	DefaultRefreshThreshold = 10 * time.Minute
)

// RunRefreshScheduler refreshes the access token whenever fewer than threshold
// of its validity remain, checking every interval until ctx is done. It is
// advisory: a missed refresh only means the next request sees a 401.
func (c *Client) RunRefreshScheduler(ctx context.Context, interval time.Duration, threshold time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshIfDue(ctx, threshold)
		}
	}
}

func (c *Client) refreshIfDue(ctx context.Context, threshold time.Duration) bool {
	exp, ok := c.AccessTokenExpiry()
	if !ok {
		return false
	}
	if exp.Sub(c.now()) >= threshold {
		return false
	}

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("scheduled token refresh failed", "error", err)
		return false
	}
	c.logger.Debug("access token refreshed", "previous_expiry", exp)
	return true
}
