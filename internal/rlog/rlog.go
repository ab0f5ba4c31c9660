// Package rlog is the structured logger shared by every vkrunner-go
// package. It wraps charmbracelet/log behind a lazily-initialized
// singleton, the same shape the engine this module was grown out of
// used for its own cross-cutting logger.
package rlog

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func get() *logger {
	once.Do(func() {
		l := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "vkrunner",
		})
		l.SetLevel(log.InfoLevel)
		singleton = &logger{l}
	})
	return singleton
}

// SetLevel changes the minimum level emitted by the shared logger.
// Called once at CLI startup when -q/--quiet is set.
func SetLevel(level log.Level) {
	get().SetLevel(level)
}

func Debug(msg string, args ...interface{}) {
	get().Debugf(msg, args...)
}

func Info(msg string, args ...interface{}) {
	get().Infof(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	get().Warnf(msg, args...)
}

func Error(msg string, args ...interface{}) {
	get().Errorf(msg, args...)
}

func Fatal(msg string, args ...interface{}) {
	get().Fatalf(msg, args...)
}

// Sub returns a derived logger carrying a permanent key/value pair,
// used by the CLI to tag every log line with the run's correlation id.
func Sub(key string, value interface{}) *log.Logger {
	return get().With(key, value)
}
