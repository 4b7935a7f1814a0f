package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"trust-access-layer/backend/internal/security"
	"trust-access-layer/backend/internal/server/middleware"
	"trust-access-layer/backend/internal/vault/cipher"
	"trust-access-layer/backend/internal/vault/domain"
	"trust-access-layer/backend/internal/vault/registry"
	"trust-access-layer/backend/internal/vault/repository"
	"trust-access-layer/backend/internal/vault/service"
)

const vaultPassword = "correct horse battery"

func init() {
	gin.SetMode(gin.TestMode)
}

type memRepo struct {
	mu      sync.Mutex
	configs map[string]domain.Configuration
}

func (m *memRepo) Get(_ context.Context, tenantID string) (*domain.Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[tenantID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memRepo) Create(_ context.Context, cfg *domain.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.TenantID]; ok {
		return repository.ErrAlreadyExists
	}
	m.configs[cfg.TenantID] = *cfg
	return nil
}

func (m *memRepo) UpdateCredentials(_ context.Context, cfg *domain.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.TenantID] = *cfg
	return nil
}

type noRevocations struct{}

func (noRevocations) IsRevoked(context.Context, string) (bool, error) { return false, nil }

type fixture struct {
	router *gin.Engine
	tokens *security.TokenProvider
	svc    *service.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	svc := service.NewService(&memRepo{configs: map[string]domain.Configuration{}}, registry.New(0, nil),
		security.NewHasher(4), cipher.MinIterations, nil)
	h := NewHandler(svc, nil)

	r := gin.New()
	g := r.Group("/v1/vault", middleware.Auth(tokens, noRevocations{}, nil))
	g.POST("/setup", h.Setup)
	g.POST("/unlock", h.Unlock)
	g.POST("/lock", h.Lock)
	g.GET("/status", h.Status)
	g.POST("/rotate", h.Rotate)
	return &fixture{router: r, tokens: tokens, svc: svc}
}

func (f *fixture) bearer(t *testing.T, tenant, subject string) string {
	t.Helper()
	tok, err := f.tokens.IssueAccess(security.Subject{ID: subject, TenantID: tenant, SessionID: "s-" + subject, Role: "owner"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return tok.Value
}

func (f *fixture) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) status(t *testing.T, bearer string) domain.Status {
	t.Helper()
	w := f.do(http.MethodGet, "/v1/vault/status", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	var st domain.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return st
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	owner := f.bearer(t, "t1", "owner")
	clerk := f.bearer(t, "t1", "clerk")

	if st := f.status(t, owner); st.IsSetup || st.IsUnlocked {
		t.Fatalf("initial status = %+v", st)
	}
	if w := f.do(http.MethodPost, "/v1/vault/unlock", owner, map[string]string{"password": vaultPassword}); w.Code != http.StatusNotFound {
		t.Errorf("unlock before setup = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/vault/setup", owner, map[string]string{"password": vaultPassword}); w.Code != http.StatusCreated {
		t.Fatalf("setup = %d, want 201", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/vault/setup", owner, map[string]string{"password": vaultPassword}); w.Code != http.StatusConflict {
		t.Errorf("second setup = %d, want 409", w.Code)
	}
	if st := f.status(t, owner); !st.IsSetup || st.IsUnlocked {
		t.Errorf("after setup = %+v, want set up and locked", st)
	}
	if w := f.do(http.MethodPost, "/v1/vault/unlock", owner, map[string]string{"password": "wrong password!"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password unlock = %d, want 401", w.Code)
	}
	if w := f.do(http.MethodPost, "/v1/vault/unlock", owner, map[string]string{"password": vaultPassword}); w.Code != http.StatusNoContent {
		t.Fatalf("unlock = %d, want 204", w.Code)
	}
	if !f.status(t, owner).IsUnlocked {
		t.Error("owner not unlocked")
	}
	if f.status(t, clerk).IsUnlocked {
		t.Error("unlock leaked to another principal of the tenant")
	}
	for i := 0; i < 2; i++ {
		if w := f.do(http.MethodPost, "/v1/vault/lock", owner, nil); w.Code != http.StatusNoContent {
			t.Fatalf("lock #%d = %d, want 204", i+1, w.Code)
		}
	}
	if f.status(t, owner).IsUnlocked {
		t.Error("owner still unlocked after lock")
	}
}

func TestRotate(t *testing.T) {
	f := newFixture(t)
	owner := f.bearer(t, "t1", "owner")
	clerk := f.bearer(t, "t1", "clerk")
	const newPassword = "a much longer new secret"

	f.do(http.MethodPost, "/v1/vault/setup", owner, map[string]string{"password": vaultPassword})
	f.do(http.MethodPost, "/v1/vault/unlock", clerk, map[string]string{"password": vaultPassword})

	w := f.do(http.MethodPost, "/v1/vault/rotate", owner, map[string]string{"old_password": "nope nope nope", "new_password": newPassword})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("rotate with wrong password = %d, want 401", w.Code)
	}
	w = f.do(http.MethodPost, "/v1/vault/rotate", owner, map[string]string{"old_password": vaultPassword, "new_password": newPassword})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rotate = %d, want 204: %s", w.Code, w.Body.String())
	}
	if !f.status(t, owner).IsUnlocked {
		t.Error("rotating scope should stay unlocked")
	}
	if f.status(t, clerk).IsUnlocked {
		t.Error("other scopes should be locked after rotation")
	}
	if w := f.do(http.MethodPost, "/v1/vault/unlock", clerk, map[string]string{"password": vaultPassword}); w.Code != http.StatusUnauthorized {
		t.Errorf("unlock with old password = %d, want 401", w.Code)
	}
}

func TestSetup_WeakPassword(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/v1/vault/setup", f.bearer(t, "t1", "owner"), map[string]string{"password": "short"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("setup weak = %d, want 400", w.Code)
	}
}
