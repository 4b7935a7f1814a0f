package ratelimit

import (
	"testing"
	"time"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    Rule
		wantErr bool
	}{
		{"5/60s", Rule{5, time.Minute}, false},
		{" 3 / 5m ", Rule{3, 5 * time.Minute}, false},
		{"5", Rule{}, true},
		{"0/60s", Rule{}, true},
		{"x/60s", Rule{}, true},
		{"5/soon", Rule{}, true},
		{"5/-1s", Rule{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRule(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRule = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	table := DefaultTable()
	if r := table.Lookup(RouteLogin); r.Max != 5 || r.Window != time.Minute {
		t.Errorf("login rule = %v", r)
	}
	if table.Lookup(RouteLogin).Max >= table.Lookup(RouteDefault).Max {
		t.Error("login must be stricter than default")
	}
	if r := table.Lookup("unknown"); r != table[RouteDefault] {
		t.Errorf("unknown route rule = %v", r)
	}
	if table.MaxWindow() != 5*time.Minute {
		t.Errorf("MaxWindow = %v", table.MaxWindow())
	}

	over, err := table.WithOverrides(map[string]string{RouteLogin: "10/30s"})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}
	if r := over.Lookup(RouteLogin); r.Max != 10 || r.Window != 30*time.Second {
		t.Errorf("overridden login = %v", r)
	}
	if table.Lookup(RouteLogin).Max != 5 {
		t.Error("WithOverrides mutated the receiver")
	}
	if _, err := table.WithOverrides(map[string]string{RouteLogin: "bad"}); err == nil {
		t.Error("invalid override accepted")
	}
}

func TestRouteName(t *testing.T) {
	tests := []struct{ method, path, want string }{
		{"POST", "/v1/auth/login", RouteLogin},
		{"POST", "/v1/auth/password/reset", RoutePasswordReset},
		{"POST", "/v1/vault/unlock", RouteVaultUnlock},
		{"POST", "/v1/auth/refresh", RouteRefresh},
		{"GET", "/v1/auth/login", RouteDefault},
		{"GET", "/v1/sessions", RouteDefault},
	}
	for _, tt := range tests {
		if got := RouteName(tt.method, tt.path); got != tt.want {
			t.Errorf("RouteName(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}
