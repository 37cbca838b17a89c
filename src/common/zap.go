package common

import (
	"strings"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func ConfigureZap(level zapcore.Level) *zap.Logger {
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.RFC3339TimeEncoder
	pe.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(colorable.NewColorableStdout()), level)
	return zap.New(core, zap.AddCaller())
}

// ParseLevel maps a config string onto a zap level, falling back to info.
func ParseLevel(raw string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(raw)))); err != nil {
		return zap.InfoLevel
	}
	return level
}
