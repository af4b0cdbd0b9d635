// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package wmilog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DebugLevelStr   string = "debug"
	InfoLevelStr    string = "info"
	WarningLevelStr string = "warning"
	ErrorLevelStr   string = "error"
)

type Wmilog struct {
	Logger *zap.SugaredLogger
}

// NewWmilog builds a named logger writing to stderr and, when logFile is
// not empty, to a rotated log file.
func NewWmilog(name string, logLevel string, logFile string, dev bool) (*Wmilog, error) {
	l, err := initWmilog(logLevel, logFile, dev)
	if err != nil {
		return nil, err
	}

	return &Wmilog{
		Logger: l.Named(name).Sugar(),
	}, nil
}

// FromZap wraps an existing zap logger, mostly for tests.
func FromZap(l *zap.Logger) *Wmilog {
	return &Wmilog{Logger: l.Sugar()}
}

func NewNop() *Wmilog {
	return FromZap(zap.NewNop())
}

func ParseLevel(logLevel string) (zapcore.Level, error) {
	switch logLevel {
	case DebugLevelStr:
		return zap.DebugLevel, nil
	case InfoLevelStr:
		return zap.InfoLevel, nil
	case WarningLevelStr:
		return zap.WarnLevel, nil
	case ErrorLevelStr:
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %s", logLevel)
	}
}

func initWmilog(logLevel string, logFile string, dev bool) (*zap.Logger, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	atom := zap.NewAtomicLevelAt(level)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atom),
	}

	if logFile != "" {
		ll := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    64, //MB
			MaxBackups: 10,
			MaxAge:     30, //days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(ll), atom))
	}

	opts := []zap.Option{zap.AddCaller()}
	if dev {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zap.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), opts...), nil
}
