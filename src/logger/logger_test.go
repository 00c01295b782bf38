package logger

import (
	"testing"

	"stock-cache/src/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("ERROR"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNewLoggerHonorsConfigLevel(t *testing.T) {
	l := NewLogger(&models.MConfig{LogLevel: "ERROR"}, "Test")
	assert.False(t, l.sugar.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.sugar.Desugar().Core().Enabled(zapcore.ErrorLevel))

	var nilCfg *models.MConfig
	l = NewLogger(nilCfg, "Test")
	assert.True(t, l.sugar.Desugar().Core().Enabled(zapcore.InfoLevel))
}

func TestNamed(t *testing.T) {
	l := NewNop().Named("child")
	assert.Equal(t, "nop.child", l.name)
	l.Info("discarded %d", 1)
}
