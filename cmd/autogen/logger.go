package main

import (
	"context"
	"fmt"
	"io"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-logger/glog"
)

// glogLogger adapts a go-logger logger to autogen.Logger. Messages are
// formatted here since autogen callers use printf style arguments.
type glogLogger struct {
	logger glog.Logger
}

func newLogger(out io.Writer, level string, asJSON bool) autogen.Logger {
	if asJSON {
		return glogLogger{logger: glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		)}
	}
	return glogLogger{logger: glog.NewLogger(
		glog.WithWriter(out),
		glog.WithLevel(level),
	)}
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(format(msg, args)) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(format(msg, args)) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(format(msg, args)) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(format(msg, args)) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(format(msg, args)) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(format(msg, args)) }

func (l glogLogger) WithContext(ctx context.Context) autogen.Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) autogen.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
