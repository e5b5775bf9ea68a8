// Package memory holds process-local stores. They back STORE_DRIVER=memory and
// double as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/repository"
	"rainbow-buyers/pkg/apierror"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]model.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *UserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return apierror.DuplicateField("email")
	}
	if _, exists := s.byID[u.ID]; exists {
		return apierror.DuplicateField("_id")
	}

	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *model.User) {
		u.IsEmailVerified = true
		u.UpdatedAt = at
	})
}

func (s *UserStore) UpdatePassword(_ context.Context, id string, passwordHash string, at time.Time) error {
	return s.update(id, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = at
	})
}

func (s *UserStore) UpdateAvatar(_ context.Context, id string, avatar string, at time.Time) error {
	return s.update(id, func(u *model.User) {
		u.Avatar = avatar
		u.UpdatedAt = at
	})
}

// SoftDelete stamps deletedAt, as an admin tool would.
func (s *UserStore) SoftDelete(id string, at time.Time) error {
	return s.update(id, func(u *model.User) {
		u.DeletedAt = &at
		u.UpdatedAt = at
	})
}

func (s *UserStore) update(id string, mutate func(u *model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return model.ErrUserNotFound
	}
	mutate(&u)
	s.byID[id] = u
	return nil
}

type OTPStore struct {
	mu      sync.Mutex
	byEmail map[string][]model.OTPChallenge
}

func NewOTPStore() *OTPStore {
	return &OTPStore{byEmail: make(map[string][]model.OTPChallenge)}
}

func (s *OTPStore) Replace(_ context.Context, challenge model.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := []model.OTPChallenge{challenge}
	for _, c := range s.byEmail[challenge.Email] {
		if c.Purpose != challenge.Purpose {
			kept = append(kept, c)
		}
	}
	s.byEmail[challenge.Email] = kept
	return nil
}

func (s *OTPStore) Consume(_ context.Context, email string, purpose model.OTPPurpose, code string, now time.Time) (model.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenges := s.byEmail[email]
	for i, c := range challenges {
		if c.Purpose != purpose || c.Code != code || c.ExpiredAt(now) {
			continue
		}
		rest := append(challenges[:i:i], challenges[i+1:]...)
		if len(rest) == 0 {
			delete(s.byEmail, email)
		} else {
			s.byEmail[email] = rest
		}
		return c, nil
	}
	return model.OTPChallenge{}, model.ErrInvalidOrExpiredOTP
}

func (s *OTPStore) CleanExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for email, challenges := range s.byEmail {
		kept := challenges[:0]
		for _, c := range challenges {
			if c.ExpiredAt(now) {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(s.byEmail, email)
		} else {
			s.byEmail[email] = kept
		}
	}
	return removed, nil
}

// Pending returns the outstanding codes for an email.
func (s *OTPStore) Pending(email string) []model.OTPChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.OTPChallenge(nil), s.byEmail[email]...)
}

type AuditStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditStore) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = repository.NormalizeAuditQuery(query)

	s.mu.RLock()
	matched := make([]model.AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesAudit(e, query) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	meta := repository.PageMeta(query, len(matched))
	start := (query.Page - 1) * query.Limit
	if start >= len(matched) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+query.Limit, len(matched))

	return matched[start:end], meta, nil
}

func matchesAudit(e model.AuditEntry, q model.AuditQuery) bool {
	if v := strings.TrimSpace(q.Action); v != "" && !strings.EqualFold(e.Action, v) {
		return false
	}
	if v := strings.TrimSpace(q.ActorID); v != "" && e.ActorID != v {
		return false
	}
	if v := strings.TrimSpace(q.Email); v != "" && e.Email != v {
		return false
	}
	if v := strings.TrimSpace(q.Status); v != "" && !strings.EqualFold(e.Status, v) {
		return false
	}
	return true
}
