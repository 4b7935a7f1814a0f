package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/session/domain"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	touchErr error
}

func newMemRepo() *memRepo { return &memRepo{sessions: make(map[string]*domain.Session)} }

func (m *memRepo) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memRepo) GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenID == tokenID {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListActiveBySubject(ctx context.Context, subject string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.Subject == subject && s.Active(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	if s, ok := m.sessions[id]; ok {
		s.LastUsedAt = at
	}
	return nil
}

func (m *memRepo) MarkRevoked(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	s.RevokeReason = reason
	return true, nil
}

func (m *memRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]string
	err     error
	cleaned int
}

func newFakeRevoker() *fakeRevoker { return &fakeRevoker{revoked: make(map[string]string)} }

func (f *fakeRevoker) Revoke(ctx context.Context, tokenID, subject string, expiresAt time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.revoked[tokenID] = reason
	return nil
}

func (f *fakeRevoker) CleanupExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned++
	return 2, nil
}

func newTestRegistry() (*Registry, *memRepo, *fakeRevoker) {
	repo := newMemRepo()
	rev := newFakeRevoker()
	return NewRegistry(repo, rev, nil, nil), repo, rev
}

func create(t *testing.T, r *Registry, subject, tokenID string, ttl time.Duration) *domain.Session {
	t.Helper()
	s, err := r.CreateSession(context.Background(), NewSession{
		TenantID: "t1", Subject: subject, TokenID: tokenID, RefreshTokenHash: "h",
		Device: "firefox", Origin: "203.0.113.7", ExpiresAt: r.nowF().Add(ttl),
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestRegistry_CreateAndList(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()
	s := create(t, r, "u1", "jti-1", time.Hour)
	create(t, r, "u2", "jti-2", time.Hour)
	if s.ID == "" || s.Device != "firefox" || s.RevokedAt != nil {
		t.Fatalf("unexpected session %+v", s)
	}
	list, err := r.ListActive(ctx, "u1")
	if err != nil || len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("ListActive = %v, %v", list, err)
	}
	if _, err := r.CreateSession(ctx, NewSession{Subject: "u1"}); apperror.KindOf(err) != apperror.KindInvalidArgument {
		t.Errorf("missing token id: kind = %q", apperror.KindOf(err))
	}
}

func TestRegistry_GetOwned(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry()
	s := create(t, r, "u1", "jti-1", time.Hour)

	if got, err := r.GetOwned(ctx, s.ID, "u1"); err != nil || got.ID != s.ID {
		t.Fatalf("GetOwned(owner) = %v, %v", got, err)
	}
	for _, tc := range []struct{ name, id, subject string }{
		{"foreign", s.ID, "u2"},
		{"missing", "nope", "u1"},
		{"empty", "", "u1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.GetOwned(ctx, tc.id, tc.subject)
			if !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("err = %v, want ErrSessionNotFound", err)
			}
		})
	}
}

func TestRegistry_RevokeRevokesToken(t *testing.T) {
	ctx := context.Background()
	r, repo, rev := newTestRegistry()
	s := create(t, r, "u1", "jti-1", time.Hour)

	if err := r.Revoke(ctx, s.ID, "u2", ReasonUserRevoked); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign revoke err = %v", err)
	}
	if len(rev.revoked) != 0 {
		t.Fatal("foreign revoke must not touch the revocation store")
	}
	if err := r.Revoke(ctx, s.ID, "u1", ReasonUserRevoked); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if rev.revoked["jti-1"] != ReasonUserRevoked {
		t.Errorf("revocation reason = %q", rev.revoked["jti-1"])
	}
	got, _ := repo.GetByID(ctx, s.ID)
	if got.RevokedAt == nil || got.RevokeReason != ReasonUserRevoked {
		t.Errorf("session not marked revoked: %+v", got)
	}
	if list, _ := r.ListActive(ctx, "u1"); len(list) != 0 {
		t.Errorf("revoked session still listed: %v", list)
	}
}

func TestRegistry_RevokeStoreFailureLeavesSessionActive(t *testing.T) {
	ctx := context.Background()
	r, repo, rev := newTestRegistry()
	s := create(t, r, "u1", "jti-1", time.Hour)
	rev.err = errors.New("db down")
	if err := r.Revoke(ctx, s.ID, "u1", ReasonLogout); err == nil {
		t.Fatal("Revoke should fail when the revocation store fails")
	}
	got, _ := repo.GetByID(ctx, s.ID)
	if got.RevokedAt != nil {
		t.Error("session marked revoked although its token was not")
	}
}

func TestRegistry_RevokeAllExcept(t *testing.T) {
	ctx := context.Background()
	r, _, rev := newTestRegistry()
	create(t, r, "u1", "jti-1", time.Hour)
	create(t, r, "u1", "jti-2", time.Hour)
	create(t, r, "u1", "jti-3", time.Hour)
	create(t, r, "u2", "jti-4", time.Hour)

	n, err := r.RevokeAll(ctx, "u1", ReasonRevokeOthers, "jti-2")
	if err != nil || n != 2 {
		t.Fatalf("RevokeAll = %d, %v; want 2", n, err)
	}
	if _, ok := rev.revoked["jti-2"]; ok {
		t.Error("spared session was revoked")
	}
	if _, ok := rev.revoked["jti-4"]; ok {
		t.Error("other subject's session was revoked")
	}
	list, _ := r.ListActive(ctx, "u1")
	if len(list) != 1 || list[0].TokenID != "jti-2" {
		t.Errorf("remaining = %v", list)
	}

	n, err = r.RevokeAll(ctx, "u1", ReasonPasswordReset, "")
	if err != nil || n != 1 {
		t.Fatalf("RevokeAll without exception = %d, %v; want 1", n, err)
	}
}

func TestRegistry_TouchSession(t *testing.T) {
	ctx := context.Background()
	r, repo, _ := newTestRegistry()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.nowF = func() time.Time { return base }
	s := create(t, r, "u1", "jti-1", time.Hour)

	r.nowF = func() time.Time { return base.Add(10 * time.Minute) }
	r.TouchSession(ctx, s.ID)
	got, _ := repo.GetByID(ctx, s.ID)
	if !got.LastUsedAt.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("LastUsedAt = %v", got.LastUsedAt)
	}

	repo.touchErr = errors.New("db down")
	r.TouchSession(ctx, s.ID) // swallowed
	r.TouchSession(ctx, "")
}

func TestRegistry_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	r, repo, rev := newTestRegistry()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.nowF = func() time.Time { return base }
	create(t, r, "u1", "short", time.Minute)
	create(t, r, "u1", "long", 24*time.Hour)

	r.nowF = func() time.Time { return base.Add(time.Hour) }
	sessions, revocations, err := r.CleanupExpired(ctx)
	if err != nil || sessions != 1 || revocations != 2 {
		t.Fatalf("CleanupExpired = %d, %d, %v", sessions, revocations, err)
	}
	if rev.cleaned != 1 {
		t.Error("revocation store not swept")
	}
	if len(repo.sessions) != 1 {
		t.Errorf("sessions left = %d, want 1", len(repo.sessions))
	}
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	r, _, rev := newTestRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(r, time.Hour, nil).Run(ctx)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for {
		rev.mu.Lock()
		c := rev.cleaned
		rev.mu.Unlock()
		if c > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not run its initial sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
