// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the file created inside the configured output directory.
const LogFileName = "chatgate.log"

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// Init builds the global logger.
//
// level is any zap level name ("debug", "info", ...); unknown values fall
// back to info. format "console" selects the development encoder, anything
// else JSON. When outputPath is non-empty logs go to outputPath/chatgate.log
// instead of stderr, which keeps full-screen UIs readable.
func Init(level, format, outputPath string) error {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o700); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file := filepath.Join(outputPath, LogFileName)
		zapConfig.OutputPaths = []string{file}
		zapConfig.ErrorOutputPaths = []string{file}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	sugar = logger.Sugar()
	mu.Unlock()
	return nil
}

// Set replaces the global logger. Passing nil restores the no-op logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		sugar = zap.NewNop().Sugar()
		return
	}
	sugar = l.Sugar()
}

// L returns the current sugared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Named returns a child logger scoped to a component.
func Named(name string) *zap.SugaredLogger {
	return L().Named(name)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	L().Debugw(msg, keysAndValues...)
}

func Info(msg string) {
	L().Info(msg)
}

func Infof(template string, args ...interface{}) {
	L().Infof(template, args...)
}

// Infow logs a message with structured key/value context.
func Infow(msg string, keysAndValues ...interface{}) {
	L().Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	L().Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	L().Warnw(msg, keysAndValues...)
}

// Error logs msg at error level with err attached under "error".
func Error(msg string, err error) {
	L().Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	L().Errorf(template, args...)
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	_ = L().Sync()
}
