// Package log provides a category aware logger on top of logrus.
package log

import (
	"io"
	"os"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger tags every entry with the category of the code that logged it.
type Logger struct {
	*logrus.Logger

	mu             sync.Mutex
	categoryFilter *regexp.Regexp
}

// New wraps logger. A nil categoryFilter lets every category through.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		Logger:         logger,
		categoryFilter: categoryFilter,
	}
}

// NewDefault returns a logger writing text entries to stderr at info level.
// Stdout is left to the messages received from the server.
func NewDefault() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return New(l, nil)
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l, nil)
}

func (l *Logger) Debugf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Logf logs msg at level unless the level is disabled or the category is
// filtered out.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...interface{}) {
	if l == nil || l.Logger == nil {
		return
	}
	if !l.IsLevelEnabled(level) {
		return
	}

	l.mu.Lock()
	filter := l.categoryFilter
	l.mu.Unlock()
	if filter != nil && !filter.MatchString(category) {
		return
	}

	l.WithField("category", category).Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string such as "debug".
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(pl)
	return nil
}

// SetCategoryFilter only lets through entries whose category matches filter.
func (l *Logger) SetCategoryFilter(filter string) error {
	re, err := regexp.Compile(filter)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.categoryFilter = re
	l.mu.Unlock()
	return nil
}
