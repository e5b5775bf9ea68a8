package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"rainbow-buyers/internal/event"
	"rainbow-buyers/internal/model"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService persists bus events as audit entries and serves the trail.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
}

func NewAuditService(store AuditStore, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{store: store, logger: logger}
}

// Run records events until ctx is done or the channel closes. Entries still
// buffered when ctx ends are written with a short grace period.
func (s *AuditService) Run(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, e)
		case <-ctx.Done():
			s.drain(events)
			return
		}
	}
}

func (s *AuditService) drain(events <-chan event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, e)
		default:
			return
		}
	}
}

func (s *AuditService) record(ctx context.Context, e event.Event) {
	entry := model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: e.Timestamp.UTC(),
		ActorID:    e.ActorID,
		Email:      e.Email,
		IP:         e.IP,
		Status:     e.Status,
		Detail:     e.Detail,
	}

	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.Error("audit entry not recorded", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) List(ctx context.Context, query model.AuditQuery) (model.AuditPage, error) {
	entries, meta, err := s.store.Query(ctx, query)
	if err != nil {
		return model.AuditPage{}, errors.Wrap(err, "query audit trail")
	}
	return model.AuditPage{Entries: entries, Meta: meta}, nil
}
