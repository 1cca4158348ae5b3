// Package logging builds the logrus logger shared by the store, the façade and the CLI.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/config"
)

// New creates a logger from the log configuration, writing to stderr.
// An unknown level falls back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is like New with an explicit writer.
func NewWithOutput(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Error logs err with the module and function that observed it. Errors from the
// taxonomy also carry their kind and offending field.
func Error(logger logrus.FieldLogger, module, funcName string, err error, fields logrus.Fields) {
	if logger == nil || err == nil {
		return
	}
	entry := logger.WithFields(logrus.Fields{
		"module":   module,
		"funcName": funcName,
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	e := apperr.As(err)
	entry = entry.WithField("error_kind", string(e.Kind))
	if e.Field != "" {
		entry = entry.WithField("field", e.Field)
	}
	entry.Error(err.Error())
}
