package log

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var debug atomic.Bool

func init() {
	on, err := strconv.ParseBool(os.Getenv("DOMAIN_DEBUG"))
	debug.Store(err == nil && on)
}

// SetDebug enables debug level for loggers created after the call.
func SetDebug(on bool) {
	debug.Store(on)
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug.Load() {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// ForDomain returns a logger entry tagged with domain kind and id.
func ForDomain(kind, id string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"domain": kind,
		"id":     id,
	})
}
