package logger

import (
	"sync"
)

// Log levels used across the robot.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Get returns a singleton logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	return Init(level, "")
}

// Init is Get with an optional log file. When file is non-empty every entry
// is also written there as JSON. Only the first call has any effect.
func Init(level, file string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, file)
	})
	return globalLogger
}
