package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_DefaultsAndValidation(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	l.Info("ready")

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestFromZap_NamedWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).Named("normalization").With(zap.String("exchange", "deribit"))

	l.Warn("missing input", zap.String("data_type", "liquidations"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "normalization", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "deribit", fields["exchange"])
	assert.Equal(t, "liquidations", fields["data_type"])
}
