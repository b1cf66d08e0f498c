package loggers

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ceramicnetwork/go-registry"
	"github.com/ceramicnetwork/go-registry/models"
)

// NewLogger builds the JSON logger used by the CLI. Every entry carries the service name, and LOG_LEVEL can raise the
// level above debug.
func NewLogger() models.Logger {
	level, err := levelFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.InitialFields = map[string]interface{}{"service": registry.ServiceName}
	return build(cfg)
}

func NewTestLogger() models.Logger {
	return build(zap.NewDevelopmentConfig())
}

// Named tags a logger's entries with the component that wrote them, e.g. "registry.ledger". Loggers that are not
// backed by zap come back unchanged.
func Named(logger models.Logger, component string) models.Logger {
	if sugared, ok := logger.(*zap.SugaredLogger); ok {
		return sugared.Named(component)
	}
	return logger
}

func levelFromEnv() (zap.AtomicLevel, error) {
	logLevel := os.Getenv(registry.Env_LogLevel)
	if len(logLevel) == 0 {
		return zap.NewAtomicLevelAt(zap.DebugLevel), nil
	}
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return level, fmt.Errorf("loggers: invalid %s %q: %w", registry.Env_LogLevel, logLevel, err)
	}
	return level, nil
}

func build(cfg zap.Config) *zap.SugaredLogger {
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	return zap.Must(cfg.Build()).Sugar()
}
