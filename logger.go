package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger contract shared with go-logger.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ResolveLogger picks the logger for a component. A non nil logger from
// provider wins; otherwise logger is used, falling back to a stdout logger.
// The returned provider always yields a usable logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return provider, named
		}
	}

	if logger == nil {
		logger = defaultLogger().named(name)
	}

	return staticProvider{logger: logger}, logger
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

type defLogger struct {
	name string
}

func defaultLogger() *defLogger {
	return &defLogger{name: "credentials"}
}

func (d *defLogger) named(name string) *defLogger {
	if name == "" {
		return d
	}
	return &defLogger{name: name}
}

func (d *defLogger) Trace(msg string, args ...any) { d.print("TRC", msg, args...) }
func (d *defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }
func (d *defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d *defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d *defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d *defLogger) Fatal(msg string, args ...any) { d.print("FTL", msg, args...) }

func (d *defLogger) WithContext(context.Context) Logger {
	return d
}

func (d *defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", level, d.name, msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Println(b.String())
}
