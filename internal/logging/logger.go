package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFile = "logs/notifyd.log"

// New returns a development logger, or in release mode a JSON logger writing
// to stdout and a rotated file. NOTIFYD_LOG_LEVEL overrides the level.
func New() (*zap.Logger, error) {
	level := zap.InfoLevel
	if v := os.Getenv("NOTIFYD_LOG_LEVEL"); v != "" {
		parsed, err := zapcore.ParseLevel(v)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	if os.Getenv("GIN_MODE") == "release" {
		if err := os.MkdirAll("logs", 0o755); err != nil {
			return nil, err
		}
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.NewMultiWriteSyncer(
				zapcore.AddSync(os.Stdout),
				zapcore.AddSync(&lumberjack.Logger{
					Filename:   logFile,
					MaxSize:    20,
					MaxBackups: 3,
					MaxAge:     7,
					Compress:   true,
				}),
			),
			level,
		)
		return zap.New(core, zap.AddCaller()), nil
	}

	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("NOTIFYD_LOG_LEVEL") != "" {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg.Build()
}
