package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.trust.access.allow"

// DefaultRegoPolicy grants vault setup and rotation to owners and admins, and the unlock,
// lock, status, session self-service and logout primitives to every tenant role.
const DefaultRegoPolicy = `package trust.access

default allow := false

admin_roles := {"owner", "admin"}

member_roles := {"owner", "admin", "member"}

privileged_actions := {"vault.setup", "vault.rotate"}

self_service_actions := {
	"vault.unlock", "vault.lock", "vault.status",
	"session.list", "session.revoke", "session.revoke_others",
	"auth.logout", "auth.password_reset",
}

allow if {
	input.action in privileged_actions
	input.role in admin_roles
}

allow if {
	input.action in self_service_actions
	input.role in member_roles
}
`

// OPAEvaluator evaluates the access policy with an in-process OPA Rego engine. The policy
// is compiled once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty). The policy must define
// data.trust.access.allow.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"access.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare access policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns the default policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// Allow evaluates the policy for {role, action}. Anything but a boolean true is a denial.
func (e *OPAEvaluator) Allow(ctx context.Context, role, action string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":   role,
		"action": action,
	}))
	if err != nil {
		return false, fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck verifies that the compiled policy evaluates. Does not touch the database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{"role": "", "action": ""}))
	if err != nil {
		return fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}
