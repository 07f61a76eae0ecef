package log

import "sync"

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// SetDefaultLogger installs the process-wide logger. The CLI calls this
// once, from the root command's persistent pre-run, after flag parsing.
func SetDefaultLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// DefaultLogger returns the process-wide logger, creating one with the
// default configuration if the CLI has not installed one yet.
func DefaultLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = Default()
	}
	return globalLogger
}
