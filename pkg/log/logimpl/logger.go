// Package logimpl implements log.Component on top of go.uber.org/zap.
package logimpl

import (
	"go.uber.org/zap"

	"github.com/cnstream-go/cnstream/pkg/log"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ log.Component = (*zapLogger)(nil)

// Params configures the logger's level and format. Loading these from a
// config file is out of scope (spec.md §1); callers populate Params
// programmatically or from flags (see cmd/cnstream).
type Params struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// JSON switches the encoder from console to JSON output.
	JSON bool
}

// New builds a log.Component backed by zap. An empty Params yields an
// info-level console logger.
func New(p Params) (log.Component, error) {
	level := zap.InfoLevel
	if p.Level != "" {
		if err := level.Set(p.Level); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	if !p.JSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: logger.Sugar()}, nil
}

func (l *zapLogger) Debugf(format string, args ...any)    { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)     { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)     { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any)    { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Criticalf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Flush()                               { _ = l.sugar.Sync() }
