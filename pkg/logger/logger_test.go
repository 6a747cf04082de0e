package logger

import (
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLogger(t *testing.T) {
	l := EnsureLogger(nil)
	require.NotNil(t, l)
	assert.IsType(t, &NoOpLogger{}, l)
	assert.Same(t, l, l.With("k", "v"))
	assert.NoError(t, l.(*NoOpLogger).Sync())

	zapLogger, err := sdklogging.NewZapLogger(sdklogging.Development)
	require.NoError(t, err)
	assert.Equal(t, zapLogger, EnsureLogger(zapLogger))
}
