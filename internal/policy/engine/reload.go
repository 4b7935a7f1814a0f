package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce is how long the policy file must be quiet before it is recompiled.
const reloadDebounce = 250 * time.Millisecond

// ReloadingEvaluator serves decisions from a policy file and recompiles it when the file
// changes. A policy that fails to compile is rejected and the previous one stays active.
type ReloadingEvaluator struct {
	current atomic.Pointer[OPAEvaluator]
	path    string
	logger  *zap.Logger
}

// NewReloadingEvaluator compiles the policy at path. The initial load must succeed.
func NewReloadingEvaluator(ctx context.Context, path string, logger *zap.Logger) (*ReloadingEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("policy path: %w", err)
	}
	r := &ReloadingEvaluator{path: abs, logger: logger}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads and compiles the policy file, replacing the active policy on success.
func (r *ReloadingEvaluator) Reload(ctx context.Context) error {
	policy, err := LoadPolicyFile(r.path)
	if err != nil {
		return err
	}
	ev, err := NewOPAEvaluator(ctx, policy)
	if err != nil {
		return err
	}
	r.current.Store(ev)
	return nil
}

// Allow evaluates the active policy.
func (r *ReloadingEvaluator) Allow(ctx context.Context, role, action string) (bool, error) {
	return r.current.Load().Allow(ctx, role, action)
}

// HealthCheck checks the active policy.
func (r *ReloadingEvaluator) HealthCheck(ctx context.Context) error {
	return r.current.Load().HealthCheck(ctx)
}

// Watch reloads the policy whenever its file is written, created or renamed into place,
// until ctx is done. The parent directory is watched so editors that replace the file
// atomically are followed.
func (r *ReloadingEvaluator) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(reloadDebounce)
			}
		case <-pending:
			pending = nil
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("policy: reload rejected; keeping previous policy", zap.String("path", r.path), zap.Error(err))
				continue
			}
			r.logger.Info("policy: reloaded", zap.String("path", r.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("policy: watch error", zap.Error(err))
		}
	}
}
