package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	testCases := []struct {
		env       string
		wantDebug bool
	}{
		{"development", true},
		{"DEV", true},
		{"production", false},
		{"", false},
	}
	for _, tc := range testCases {
		t.Run(tc.env, func(t *testing.T) {
			logger, err := New(tc.env)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tc.wantDebug)
			}
			if zap.L() != logger {
				t.Error("logger not installed globally")
			}
		})
	}
}
