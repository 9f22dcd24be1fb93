package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()

	// stderr, so stdout carries only comparison reports
	Logger.SetOutput(os.Stderr)

	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Configure applies a level name (as accepted by logrus.ParseLevel) and a
// format of "json" or "text". Unparseable levels mean info; anything other
// than json means text.
func Configure(level, format string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
		return
	}
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
}

// WithFields creates a new entry with the given fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Info logs at info level on the shared logger
func Info(msg string) {
	Logger.Info(msg)
}
