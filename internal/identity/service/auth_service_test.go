package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/lockout"
	"trust-access-layer/backend/internal/revocation"
	revocationrepo "trust-access-layer/backend/internal/revocation/repository"
	"trust-access-layer/backend/internal/security"
	sessionrepo "trust-access-layer/backend/internal/session/repository"
	sessionservice "trust-access-layer/backend/internal/session/service"
	userdomain "trust-access-layer/backend/internal/user/domain"
	userrepo "trust-access-layer/backend/internal/user/repository"
)

const (
	testTenant   = "tenant-1"
	testEmail    = "owner@example.com"
	testPassword = "Correct-Horse-42"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) LogEvent(ctx context.Context, tenantID, subject, action, resource string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingAudit) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

type fixture struct {
	svc         *AuthService
	users       *userrepo.MemoryRepository
	policy      *lockout.Policy
	sessions    *sessionservice.Registry
	revocations *revocation.Store
	tokens      *security.TokenProvider
	audit       *recordingAudit
	clock       *time.Time
	user        *userdomain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC()
	clock := &now
	nowF := func() time.Time { return *clock }

	tokens, err := security.NewTestTokenProviderAt(nowF)
	if err != nil {
		t.Fatalf("NewTestTokenProviderAt: %v", err)
	}
	users := userrepo.NewMemoryRepository()
	policy := lockout.NewPolicy(users, 5, 15*time.Minute)
	policy.SetClock(nowF)
	revocations := revocation.NewStore(revocationrepo.NewMemoryRepository(), nil, nil)
	rec := &recordingAudit{}
	sessions := sessionservice.NewRegistry(sessionrepo.NewMemoryRepository(), revocations, rec, nil)

	svc := NewAuthService(users, policy, sessions, revocations, security.NewHasher(4), tokens, rec)
	svc.nowF = nowF
	user, err := svc.Register(context.Background(), testTenant, testEmail, testPassword, userdomain.RoleOwner)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &fixture{svc: svc, users: users, policy: policy, sessions: sessions, revocations: revocations,
		tokens: tokens, audit: rec, clock: clock, user: user}
}

func (f *fixture) login(t *testing.T) *AuthResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginRequest{
		TenantID: testTenant, Email: testEmail, Password: testPassword, Device: "cli", Origin: "198.51.100.4",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if f.user.Email != testEmail || f.user.Role != userdomain.RoleOwner || f.user.PasswordHash == testPassword {
		t.Fatalf("unexpected user %+v", f.user)
	}
	tests := []struct {
		name     string
		email    string
		password string
		kind     apperror.Kind
	}{
		{"duplicate", "OWNER@example.com", testPassword, apperror.KindConflict},
		{"bad email", "not-an-email", testPassword, apperror.KindInvalidArgument},
		{"short password", "b@example.com", "Sh0rt!", apperror.KindInvalidArgument},
		{"no symbol", "b@example.com", "NoSymbolsHere42", apperror.KindInvalidArgument},
		{"no upper", "b@example.com", "no-upper-case-42", apperror.KindInvalidArgument},
		{"longer than bcrypt accepts", "b@example.com", "Aa1-" + strings.Repeat("x", security.MaxPasswordBytes), apperror.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, testTenant, tt.email, tt.password, userdomain.RoleMember)
			if apperror.KindOf(err) != tt.kind {
				t.Errorf("kind = %q, want %q (err %v)", apperror.KindOf(err), tt.kind, err)
			}
		})
	}
	if _, err := f.svc.Register(ctx, "tenant-2", testEmail, testPassword, userdomain.RoleMember); err != nil {
		t.Errorf("same email in another tenant: %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	res := f.login(t)
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("incomplete result %+v", res)
	}
	claims, err := f.tokens.Validate(res.AccessToken, security.TokenTypeAccess)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if claims.Subject != f.user.ID || claims.TenantID != testTenant || claims.SessionID != res.SessionID || claims.Role != "owner" {
		t.Errorf("claims = %+v", claims)
	}
	list, _ := f.sessions.ListActive(context.Background(), f.user.ID)
	if len(list) != 1 || list[0].ID != res.SessionID || list[0].Device != "cli" {
		t.Errorf("sessions = %+v", list)
	}
	if !f.audit.has("login_success") {
		t.Error("login_success not audited")
	}
}

func TestLogin_GenericFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"unknown account", LoginRequest{TenantID: testTenant, Email: "ghost@example.com", Password: testPassword}},
		{"wrong password", LoginRequest{TenantID: testTenant, Email: testEmail, Password: "Wrong-Password-1"}},
		{"wrong tenant", LoginRequest{TenantID: "other", Email: testEmail, Password: testPassword}},
		{"empty", LoginRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.req)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
			if _, msg := apperror.Public(err); msg != "invalid credentials" {
				t.Errorf("message = %q", msg)
			}
		})
	}
}

func TestLogin_LockoutRejectsCorrectPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bad := LoginRequest{TenantID: testTenant, Email: testEmail, Password: "Wrong-Password-1"}
	for i := 0; i < 5; i++ {
		if _, err := f.svc.Login(ctx, bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v", i+1, err)
		}
	}
	if !f.audit.has("account_locked") {
		t.Error("account_locked not audited")
	}
	good := LoginRequest{TenantID: testTenant, Email: testEmail, Password: testPassword}
	if _, err := f.svc.Login(ctx, good); apperror.KindOf(err) != apperror.KindLocked {
		t.Fatalf("correct password while locked: kind = %q", apperror.KindOf(err))
	}

	f.advance(15*time.Minute + time.Second)
	if _, err := f.svc.Login(ctx, good); err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
	l, _ := f.users.GetLockout(ctx, f.user.ID)
	if l.FailedAttempts != 0 || l.LockedUntil != nil {
		t.Errorf("lockout not reset after success: %+v", l)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.login(t)

	out, err := f.svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken != "" || out.SessionID != res.SessionID {
		t.Errorf("refresh result = %+v", out)
	}
	if _, err := f.svc.Refresh(ctx, res.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("empty token: %v", err)
	}
}

// Revoking only the refresh token's session leaves the access token valid until its own
// expiry, while the refresh token is rejected immediately.
func TestRevokeSession_AccessOutlivesRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.login(t)

	if err := f.sessions.Revoke(ctx, res.SessionID, f.user.ID, sessionservice.ReasonUserRevoked); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	claims, err := f.tokens.Validate(res.AccessToken, security.TokenTypeAccess)
	if err != nil {
		t.Fatalf("access token rejected after session revoke: %v", err)
	}
	if revoked, _ := f.revocations.IsRevoked(ctx, claims.ID); revoked {
		t.Error("access token jti revoked by session revoke")
	}
	refreshClaims, _ := f.tokens.Validate(res.RefreshToken, security.TokenTypeRefresh)
	if revoked, _ := f.revocations.IsRevoked(ctx, refreshClaims.ID); !revoked {
		t.Error("refresh token not revoked")
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("revoked refresh token accepted")
	}

	f.advance(f.tokens.AccessTTL() + time.Second)
	if _, err := f.tokens.Validate(res.AccessToken, security.TokenTypeAccess); err == nil {
		t.Error("access token valid past its expiry")
	}
}

func TestRefresh_ReuseRevokesAllSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.login(t)
	second := f.login(t)

	if err := f.sessions.Revoke(ctx, first.SessionID, f.user.ID, sessionservice.ReasonUserRevoked); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("err = %v, want ErrRefreshTokenReuse", err)
	}
	if _, err := f.svc.Refresh(ctx, second.RefreshToken); err == nil {
		t.Error("other session survived refresh token reuse")
	}
	if !f.audit.has("refresh_token_reuse") {
		t.Error("reuse not audited")
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.login(t)
	claims, _ := f.tokens.Validate(res.AccessToken, security.TokenTypeAccess)

	if err := f.svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if revoked, _ := f.revocations.IsRevoked(ctx, claims.ID); !revoked {
		t.Error("access token still usable after logout")
	}
	if list, _ := f.sessions.ListActive(ctx, f.user.ID); len(list) != 0 {
		t.Errorf("sessions after logout = %d", len(list))
	}
	if err := f.svc.Logout(ctx, claims); err != nil {
		t.Errorf("second Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, nil); err == nil {
		t.Error("Logout(nil) should fail")
	}
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.login(t)
	f.login(t)
	_, _ = f.svc.Login(ctx, LoginRequest{TenantID: testTenant, Email: testEmail, Password: "Wrong-Password-1"})

	const newPassword = "Brand-New-Secret-7"
	if err := f.svc.ResetPassword(ctx, testTenant, f.user.ID, testPassword, newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if list, _ := f.sessions.ListActive(ctx, f.user.ID); len(list) != 0 {
		t.Errorf("sessions after reset = %d, want 0", len(list))
	}
	if _, err := f.svc.Refresh(ctx, a.RefreshToken); err == nil {
		t.Error("refresh token survived password reset")
	}
	l, _ := f.users.GetLockout(ctx, f.user.ID)
	if l.FailedAttempts != 0 {
		t.Errorf("failed attempts after reset = %d", l.FailedAttempts)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{TenantID: testTenant, Email: testEmail, Password: testPassword}); err == nil {
		t.Error("old password still works")
	}
	if _, err := f.svc.Login(ctx, LoginRequest{TenantID: testTenant, Email: testEmail, Password: newPassword}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "other-tenant", f.user.ID, newPassword, newPassword); apperror.KindOf(err) != apperror.KindNotFound {
		t.Errorf("cross-tenant reset kind = %q", apperror.KindOf(err))
	}
	if err := f.svc.ResetPassword(ctx, testTenant, f.user.ID, newPassword, "weak"); apperror.KindOf(err) != apperror.KindInvalidArgument {
		t.Errorf("weak password kind = %q", apperror.KindOf(err))
	}
}

func TestResetPassword_WrongCurrentPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.login(t)

	err := f.svc.ResetPassword(ctx, testTenant, f.user.ID, "Not-The-Password-9", "Brand-New-Secret-7")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if list, _ := f.sessions.ListActive(ctx, f.user.ID); len(list) != 1 {
		t.Errorf("sessions after rejected reset = %d, want 1", len(list))
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken); err != nil {
		t.Errorf("refresh after rejected reset: %v", err)
	}
	l, _ := f.users.GetLockout(ctx, f.user.ID)
	if l.FailedAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", l.FailedAttempts)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{TenantID: testTenant, Email: testEmail, Password: testPassword}); err != nil {
		t.Errorf("original password rejected: %v", err)
	}
}

func TestResetPassword_LockedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < f.policy.Threshold(); i++ {
		_ = f.svc.ResetPassword(ctx, testTenant, f.user.ID, "Not-The-Password-9", "Brand-New-Secret-7")
	}
	err := f.svc.ResetPassword(ctx, testTenant, f.user.ID, testPassword, "Brand-New-Secret-7")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

// failingRevokeAll is a session registry whose bulk revoke always fails.
type failingRevokeAll struct {
	*sessionservice.Registry
}

func (failingRevokeAll) RevokeAll(context.Context, string, string, string) (int, error) {
	return 0, errors.New("session store unavailable")
}

var _ SessionRegistry = failingRevokeAll{}

func TestRefresh_ReuseReportsRevokeFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.login(t)
	second := f.login(t)
	svc := NewAuthService(f.users, f.policy, failingRevokeAll{f.sessions}, f.revocations, security.NewHasher(4), f.tokens, f.audit)
	svc.nowF = f.svc.nowF

	if err := f.sessions.Revoke(ctx, first.SessionID, f.user.ID, sessionservice.ReasonUserRevoked); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err := svc.Refresh(ctx, first.RefreshToken)
	if err == nil || errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("err = %v, want the revoke failure", err)
	}
	if !f.audit.has("refresh_token_reuse") {
		t.Error("reuse not audited")
	}
	active, _ := f.sessions.ListActive(ctx, f.user.ID)
	if len(active) != 1 || active[0].ID != second.SessionID {
		t.Errorf("active sessions = %v, want only the second", active)
	}
}
