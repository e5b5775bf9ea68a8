package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/repository/memory"
)

func TestAuditServiceRecordsAuthEvents(t *testing.T) {
	f := newAuthFixture(t, func(c *AuthConfig) { c.RequireOTP = false })
	audit := NewAuditService(memory.NewAuditStore(), nil)

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		audit.Run(ctx, events)
		close(done)
	}()

	f.seedUser(t, "ann@x.com", true)
	_, err := f.svc.Login(context.Background(), "ann@x.com", "wrong-password", model.Actor{IP: "10.1.1.1"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	require.Eventually(t, func() bool {
		page, err := audit.List(context.Background(), model.AuditQuery{Action: string(event.TypeLoginFailed)})
		return err == nil && page.Meta.Total == 1
	}, time.Second, 5*time.Millisecond)

	page, err := audit.List(context.Background(), model.AuditQuery{Action: string(event.TypeLoginFailed)})
	require.NoError(t, err)
	entry := page.Entries[0]
	require.Equal(t, "10.1.1.1", entry.IP)
	require.Equal(t, event.StatusFailure, entry.Status)
	require.Equal(t, "wrong password", entry.Detail)

	page, err = audit.List(context.Background(), model.AuditQuery{Action: string(event.TypeEmailVerified)})
	require.NoError(t, err)
	require.Equal(t, 1, page.Meta.Total)

	cancel()
	<-done
}
