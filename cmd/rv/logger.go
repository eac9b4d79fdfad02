package main

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/savechina/rv/internal/config"
)

// charmLogger adapts charmbracelet/log to config.Logger.
type charmLogger struct {
	l *log.Logger
}

func newLogger(w io.Writer, level string) (config.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "rv",
		Level:           lvl,
		ReportTimestamp: lvl == log.DebugLevel,
	})
	return &charmLogger{l: l}, nil
}

func (c *charmLogger) Debug(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c *charmLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Info(msg, keysAndValues...)
}

func (c *charmLogger) Warn(msg string, keysAndValues ...interface{}) {
	c.l.Warn(msg, keysAndValues...)
}

func (c *charmLogger) Error(msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, keysAndValues...)
}
