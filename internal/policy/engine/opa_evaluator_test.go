package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		role   string
		action string
		want   bool
	}{
		{"owner", ActionVaultSetup, true},
		{"admin", ActionVaultRotate, true},
		{"member", ActionVaultSetup, false},
		{"member", ActionVaultRotate, false},
		{"member", ActionVaultUnlock, true},
		{"member", ActionVaultLock, true},
		{"member", ActionVaultStatus, true},
		{"member", ActionSessionRevokeOthers, true},
		{"admin", ActionAuthPasswordReset, true},
		{"", ActionVaultStatus, false},
		{"guest", ActionSessionList, false},
		{"owner", "vault.export", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action, func(t *testing.T) {
			got, err := e.Allow(ctx, tt.role, tt.action)
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	policy := `package trust.access

default allow := false

allow if input.role == "owner"
`
	e, err := NewOPAEvaluator(ctx, policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if ok, _ := e.Allow(ctx, "admin", ActionVaultSetup); ok {
		t.Error("custom policy should deny admin")
	}
	if ok, _ := e.Allow(ctx, "owner", "anything"); !ok {
		t.Error("custom policy should allow owner")
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package broken\nallow if {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	if p, err := LoadPolicyFile(""); err != nil || p != DefaultRegoPolicy {
		t.Errorf("empty path = %v", err)
	}
	path := filepath.Join(t.TempDir(), "access.rego")
	if err := os.WriteFile(path, []byte("package trust.access\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if p, err := LoadPolicyFile(path); err != nil || p != "package trust.access\n" {
		t.Errorf("LoadPolicyFile = %q, %v", p, err)
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("missing file should fail")
	}
}
