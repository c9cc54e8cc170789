package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Settings come from GEXL_* environment variables; flags override them.
type Settings struct {
	Policy   string `envconfig:"POLICY" default:""`
	Bindings string `envconfig:"BINDINGS" default:""`
	History  string `envconfig:"HISTORY" default:".gexl_history"`
	Logging  LogSettings
}

type LogSettings struct {
	Level       string `envconfig:"LOG_LEVEL" default:"warn"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

func loadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("gexl", &s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &s, nil
}

func newLogger(cfg LogSettings) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "console",
		EncoderConfig:     zap.NewDevelopmentEncoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     true,
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}
