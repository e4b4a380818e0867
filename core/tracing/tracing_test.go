package tracing

import (
	"context"
	"testing"

	"github.com/AzielCF/az-connect/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_DisabledIsNoop(t *testing.T) {
	m := NewManager(config.TracingConfig{Enabled: false}, config.AppConfig{})
	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.provider)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StdoutLifecycle(t *testing.T) {
	m := NewManager(config.TracingConfig{Enabled: true, Stdout: true, SampleRate: 0, ServiceName: "az-connect-test"}, config.AppConfig{Version: "test"})
	require.NoError(t, m.Initialize(context.Background()))
	assert.NotNil(t, m.provider)
	assert.NoError(t, m.Shutdown(context.Background()))
}
