package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLogLevel(tt.input), "level %q", tt.input)
	}
}

func TestWithHelpersReturnNewLogger(t *testing.T) {
	base := NewNop()

	withComponent := base.WithComponent("engine")
	withField := base.WithField("ticket", int64(42))
	withFields := base.WithFields(map[string]interface{}{"a": 1, "b": "x"})

	// 원본 로거는 변경되지 않아야 함
	assert.NotSame(t, base, withComponent)
	assert.NotSame(t, base, withField)
	assert.NotSame(t, base, withFields)
}
