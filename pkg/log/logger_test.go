package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	_, err = ParseLogLevel("bogus")
	assert.Error(t, err)
}

// Library packages log through the component loggers before any Init call;
// the defaults must swallow those events instead of panicking.
func TestComponentLoggersUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Store.Debug().Str("path", "x").Msg("opened")
		View.Debug().Int("pairs", 0).Msg("digest")
		CLI.Error().Msg("failed")
	})
}

func TestInitConfiguresComponentLoggers(t *testing.T) {
	Init(Options{LogLevel: zerolog.WarnLevel, Type: JSONLogger})

	assert.Equal(t, zerolog.WarnLevel, Root.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, Store.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, View.GetLevel())
	assert.Equal(t, zerolog.WarnLevel, CLI.GetLevel())
}
