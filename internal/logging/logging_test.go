package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	require.Equal(t, zerolog.Disabled, ParseLevel("none"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestEnabled(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	require.True(t, Enabled(zerolog.ErrorLevel))
	require.False(t, Enabled(zerolog.DebugLevel))
}
