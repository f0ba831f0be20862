// Package logging constructs the single structured logger used by
// every component. Per spec.md §7, each error gets one timestamped
// log line; this package is where that format is fixed.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a configured logger: text formatter, timestamps on,
// level from the GYMNASTICON_LOG_LEVEL environment variable (defaults
// to info).
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level := logrus.InfoLevel
	if v := os.Getenv("GYMNASTICON_LOG_LEVEL"); v != "" {
		if parsed, err := logrus.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	log.SetLevel(level)
	return log
}
