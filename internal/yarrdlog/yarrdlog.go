// Package yarrdlog is the package-level structured logger, per spec.md
// §4.12 (EXPANSION). Its only caller is internal/dbcatalog, which logs
// createdb, dropdb, connect and close at Info and a failed table close
// at Error; the table and index layers do not log. Logging never
// replaces a returned error - callers still propagate the error
// themselves.
//
// Grounded on the teacher-adjacent pack example's logger package
// (zhukovaskychina-xmysql-server/logger), generalized from its three
// separate Logger/InfoLogger/ErrorLogger instances down to the single
// package-level *logrus.Logger this module needs.
package yarrdlog

import "github.com/sirupsen/logrus"

// Log is the package-level logger. Callers may reassign it (for
// example to redirect output or raise the level) before connecting to
// a database.
var Log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel parses level ("debug", "info", "warn", "error") and applies
// it to Log, falling back to Info on an unrecognized name.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// Infof logs a database lifecycle event (createdb, dropdb, connect, close).
func Infof(format string, args ...interface{}) { Log.Infof(format, args...) }

// Warnf logs a degraded-but-recovered condition.
func Warnf(format string, args ...interface{}) { Log.Warnf(format, args...) }

// Errorf logs a fatal I/O or corruption error. The caller must still
// return the error; this only records it.
func Errorf(format string, args ...interface{}) { Log.Errorf(format, args...) }
