// Package log provides the leveled logging sink used by every bci
// subsystem.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

// Logger is a global interface for bci loggers. *logrus.Logger and
// *logrus.Entry satisfy it.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("BCI_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled when
// BCI_DEBUG environment variable is set to true.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Stage returns a logger that tags every entry with the stage name and
// id. Loggers other than logrus are returned as is.
func Stage(l Logger, name, id string) Logger {
	fields := logrus.Fields{
		"stage": name,
		"id":    id,
	}
	switch v := l.(type) {
	case *logrus.Logger:
		return v.WithFields(fields)
	case *logrus.Entry:
		return v.WithFields(fields)
	}
	return l
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

func (silentLogger) Warn(args ...interface{}) {}

func (silentLogger) Error(args ...interface{}) {}

// Silent discards all messages. It's used when no logger is provided.
var Silent Logger = silentLogger{}

// OrSilent returns l, or the silent logger if l is nil.
func OrSilent(l Logger) Logger {
	if l == nil {
		return Silent
	}
	return l
}
