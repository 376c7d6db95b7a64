package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rewardtask-controlplane/pkg/config"
)

func TestNewReplacesGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New(ConfigParams{Cfg: &config.Config{AppEnv: "production", AppName: "rewardtask"}})
	require.NoError(t, err)
	require.Same(t, log, zap.L())
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewDevelopmentWithoutConfig(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New(ConfigParams{})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
