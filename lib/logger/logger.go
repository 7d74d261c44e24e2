package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates sugared logger tagged with service name. Level is read from
// LOG_LEVEL (debug, info, warn, error) and defaults to info.
func New(service string) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if err := level.UnmarshalText([]byte(l)); err != nil {
			return zap.NewNop().Sugar(), err
		}
	}

	config := zap.NewProductionConfig()
	config.Level = level
	config.DisableStacktrace = true
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.InitialFields = map[string]interface{}{
		"service": service,
	}

	log, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar(), err
	}

	return log.Sugar(), nil
}
