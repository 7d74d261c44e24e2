package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	log, err := New("test")
	require.NoError(t, err)
	require.False(t, log.Desugar().Core().Enabled(-1))
	require.True(t, log.Desugar().Core().Enabled(1))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	log, err := New("test")
	require.Error(t, err)
	require.NotNil(t, log)
}
