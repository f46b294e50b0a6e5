// Package logging builds the zap loggers used by the CLI and the fake API
// server and adapts them to entity.Logger.
package logging

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fivetwenty-io/entity-client/pkg/entity"
)

// Environments accepted by NewLogger.
const (
	EnvProduction  = "prod"
	EnvDevelopment = "dev"
)

// NewLogger returns a JSON info logger for "prod" and a colored debug
// logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == EnvProduction {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}

// NewSugar is NewLogger in sugared form.
func NewSugar(env string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env)
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

// Adapter exposes a sugared zap logger as an entity.Logger.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ entity.Logger = (*Adapter)(nil)

// NewAdapter wraps sugar. A nil sugar logs nothing.
func NewAdapter(sugar *zap.SugaredLogger) *Adapter {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	return &Adapter{sugar: sugar}
}

func (a *Adapter) Debug(msg string, fields map[string]interface{}) {
	a.sugar.Debugw(msg, keysAndValues(fields)...)
}

func (a *Adapter) Info(msg string, fields map[string]interface{}) {
	a.sugar.Infow(msg, keysAndValues(fields)...)
}

func (a *Adapter) Warn(msg string, fields map[string]interface{}) {
	a.sugar.Warnw(msg, keysAndValues(fields)...)
}

func (a *Adapter) Error(msg string, fields map[string]interface{}) {
	a.sugar.Errorw(msg, keysAndValues(fields)...)
}

// keysAndValues flattens fields in key order.
func keysAndValues(fields map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, fields[k])
	}

	return out
}
