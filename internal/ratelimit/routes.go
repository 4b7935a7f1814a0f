package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Route names with dedicated rules.
const (
	RouteLogin         = "login"
	RoutePasswordReset = "password_reset"
	RouteVaultUnlock   = "vault_unlock"
	RouteRefresh       = "refresh"
	RouteDefault       = "default"
)

// Rule allows Max requests per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Max, r.Window)
}

// ParseRule parses "max/window", e.g. "5/60s" or "3/5m".
func ParseRule(s string) (Rule, error) {
	maxStr, winStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rule{}, fmt.Errorf("ratelimit: rule %q must be max/window", s)
	}
	max, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil || max <= 0 {
		return Rule{}, fmt.Errorf("ratelimit: rule %q: max must be a positive integer", s)
	}
	window, err := time.ParseDuration(strings.TrimSpace(winStr))
	if err != nil || window <= 0 {
		return Rule{}, fmt.Errorf("ratelimit: rule %q: window must be a positive duration", s)
	}
	return Rule{Max: max, Window: window}, nil
}

// Table maps route names to rules. Authentication-sensitive routes are much stricter than
// general traffic.
type Table map[string]Rule

// DefaultTable returns the built-in rules.
func DefaultTable() Table {
	return Table{
		RouteLogin:         {Max: 5, Window: 60 * time.Second},
		RoutePasswordReset: {Max: 3, Window: 300 * time.Second},
		RouteVaultUnlock:   {Max: 5, Window: 300 * time.Second},
		RouteRefresh:       {Max: 30, Window: 60 * time.Second},
		RouteDefault:       {Max: 120, Window: 60 * time.Second},
	}
}

// WithOverrides returns a copy of t with the given "max/window" overrides applied.
func (t Table) WithOverrides(overrides map[string]string) (Table, error) {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	for route, s := range overrides {
		rule, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		out[route] = rule
	}
	return out, nil
}

// Lookup returns the rule for route, falling back to the default rule.
func (t Table) Lookup(route string) Rule {
	if r, ok := t[route]; ok {
		return r
	}
	return t[RouteDefault]
}

// MaxWindow returns the longest window in the table.
func (t Table) MaxWindow() time.Duration {
	var max time.Duration
	for _, r := range t {
		if r.Window > max {
			max = r.Window
		}
	}
	return max
}

// RouteName classifies an HTTP route template into a rule name.
func RouteName(method, path string) string {
	if method != http.MethodPost {
		return RouteDefault
	}
	switch path {
	case "/v1/auth/login":
		return RouteLogin
	case "/v1/auth/password/reset":
		return RoutePasswordReset
	case "/v1/vault/unlock":
		return RouteVaultUnlock
	case "/v1/auth/refresh":
		return RouteRefresh
	}
	return RouteDefault
}
