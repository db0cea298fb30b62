package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	// Helpers must not panic after initialization
	Infow("test message", FieldJobID, "JB123")
	Debugw("debug message", FieldPrinterID, "PR1")
	Cleanup()
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
	Cleanup()
}

func TestNamedLogger(t *testing.T) {
	require.NoError(t, Initialize(false))
	named := Named("sched")
	require.NotNil(t, named)
	named.Infow("run complete", FieldCount, 3)
	Cleanup()
}

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The package-level no-op logger must absorb calls made before Initialize
	Infow("before init")
	Warnw("before init")
	Errorw("before init")
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
}
