package engine

import "context"

// Actions guarded by the access policy.
const (
	ActionVaultSetup          = "vault.setup"
	ActionVaultRotate         = "vault.rotate"
	ActionVaultUnlock         = "vault.unlock"
	ActionVaultLock           = "vault.lock"
	ActionVaultStatus         = "vault.status"
	ActionSessionList         = "session.list"
	ActionSessionRevoke       = "session.revoke"
	ActionSessionRevokeOthers = "session.revoke_others"
	ActionAuthLogout          = "auth.logout"
	ActionAuthPasswordReset   = "auth.password_reset"
)

// Evaluator decides whether a principal with role may call a security primitive.
type Evaluator interface {
	// Allow reports whether role may perform action. An evaluation error must be treated as a denial.
	Allow(ctx context.Context, role, action string) (bool, error)
}
