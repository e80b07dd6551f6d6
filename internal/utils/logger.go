// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger with the field-map call style used across the services.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	log  *logrus.Logger
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stdout)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		l.SetLevel(logrus.InfoLevel)
		globalLogger = &Logger{log: l}
	})
	return globalLogger
}

// NewLogger builds a standalone logger writing to w. Used by tests to capture output.
func NewLogger(w io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	lg := &Logger{log: l}
	lg.SetLevel(level)
	return lg
}

// InitLogger tees the global logger into logFile
func InitLogger(logFile string) error {
	logger := GetLogger()

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if logger.file != nil {
		logger.file.Close()
	}
	logger.file = file
	logger.log.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// SetLevel accepts logrus level names; unknown names keep the current level.
func (l *Logger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	l.log.SetLevel(parsed)
}

// Logrus exposes the backing logger for libraries that want one.
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

func (l *Logger) entry(fields map[string]interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return logrus.NewEntry(l.log)
	}
	return l.log.WithFields(logrus.Fields(fields))
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.entry(fields).Debug(message)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.entry(fields).Info(message)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.entry(fields).Warn(message)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.entry(fields).Error(message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.log.SetOutput(os.Stdout)
	err := l.file.Close()
	l.file = nil
	return err
}
