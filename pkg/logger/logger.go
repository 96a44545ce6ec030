// Package logger is the component-tagged structured logger shared by every
// tgminer package. It wraps a single logrus logger so call sites only deal
// with a component name and an optional field map.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	if strings.EqualFold(os.Getenv("TGMINER_LOG_FORMAT"), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// SetLevel changes the minimum level that is emitted.
func SetLevel(level LogLevel) {
	switch level {
	case DEBUG:
		std.SetLevel(logrus.DebugLevel)
	case WARN:
		std.SetLevel(logrus.WarnLevel)
	case ERROR:
		std.SetLevel(logrus.ErrorLevel)
	default:
		std.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetJSON switches between the JSON and text formatters.
func SetJSON(enabled bool) {
	if enabled {
		std.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func entry(component string, fields map[string]any) *logrus.Entry {
	e := std.WithField("component", component)
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

func DebugC(component, msg string) { entry(component, nil).Debug(msg) }

func DebugCF(component, msg string, fields map[string]any) { entry(component, fields).Debug(msg) }

func InfoC(component, msg string) { entry(component, nil).Info(msg) }

func InfoCF(component, msg string, fields map[string]any) { entry(component, fields).Info(msg) }

func WarnC(component, msg string) { entry(component, nil).Warn(msg) }

func WarnCF(component, msg string, fields map[string]any) { entry(component, fields).Warn(msg) }

func ErrorC(component, msg string) { entry(component, nil).Error(msg) }

func ErrorCF(component, msg string, fields map[string]any) { entry(component, fields).Error(msg) }
