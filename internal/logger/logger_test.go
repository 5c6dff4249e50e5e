package logger

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		level       string
		expected    zapcore.Level
		expectedErr bool
	}{
		{level: "debug", expected: zapcore.DebugLevel},
		{level: "info", expected: zapcore.InfoLevel},
		{level: "", expected: zapcore.WarnLevel},
		{level: "warn", expected: zapcore.WarnLevel},
		{level: "error", expected: zapcore.ErrorLevel},
		{level: "verbose", expectedErr: true},
	} {
		t.Run(tc.level, func(t *testing.T) {
			actual, err := parseLevel(tc.level)
			if tc.expectedErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := New("debug")
	assert.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New("verbose")
	assert.Error(t, err)
}
