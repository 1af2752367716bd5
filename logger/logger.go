// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "[DEBUG] ",
	INFO:  "[INFO]  ",
	WARN:  "[WARN]  ",
	ERROR: "[ERROR] ",
}

var levelColors = map[LogLevel]string{
	DEBUG: colorGray,
	INFO:  colorReset,
	WARN:  colorYellow,
	ERROR: colorRed,
}

// sink is one output destination with a logger per level.
type sink struct {
	loggers map[LogLevel]*log.Logger
}

func newSink(w io.Writer, colored bool) *sink {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	s := &sink{loggers: make(map[LogLevel]*log.Logger, len(levelNames))}
	for level, name := range levelNames {
		prefix := name
		if colored {
			prefix = levelColors[level] + name + colorReset
		}
		s.loggers[level] = log.New(w, prefix, flags)
	}
	return s
}

type Logger struct {
	console  *sink
	file     *sink
	logFile  *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// fallbackLogger serves output if the default was cleared after first use.
var fallbackLogger = &Logger{console: newSink(os.Stdout, true), minLevel: INFO}

// ensureInitialized creates a console logger on stdout if Init was never called
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = &Logger{console: newSink(os.Stdout, true), minLevel: INFO}
		}
	})
}

// Init initializes the logger with optional file and console output.
// If filename is empty, logs only to console.
// If console is false, logs only to file.
func Init(filename string, console bool) error {
	return InitWriter(filename, consoleWriter(console))
}

// InitWriter is Init with an explicit console writer (nil disables console
// output). The CLI passes os.Stderr so stdout stays free for results.
func InitWriter(filename string, console io.Writer) error {
	l := &Logger{minLevel: INFO}
	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		l.logFile = file
		l.file = newSink(file, false)
	}
	if console != nil {
		l.console = newSink(console, true)
	}
	if l.console == nil && l.file == nil {
		return fmt.Errorf("no output destination specified")
	}

	// Only a complete logger replaces the default.
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil {
		l.minLevel = defaultLogger.minLevel
		if defaultLogger.logFile != nil {
			defaultLogger.logFile.Close()
		}
	}
	defaultLogger = l
	return nil
}

func consoleWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stdout
	}
	return nil
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = &Logger{console: newSink(os.Stdout, true)}
	}
	defaultLogger.minLevel = level
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.logFile != nil {
		defaultLogger.logFile.Close()
		defaultLogger.logFile = nil
		defaultLogger.file = nil
	}
}

func output(level LogLevel, msg string) {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()

	l := defaultLogger
	if l == nil {
		l = fallbackLogger
	}
	if level < l.minLevel {
		return
	}
	// depth 3: output -> Info/Infof -> caller
	if l.console != nil {
		l.console.loggers[level].Output(3, msg)
	}
	if l.file != nil {
		l.file.loggers[level].Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) { output(DEBUG, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...interface{}) { output(INFO, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { output(INFO, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...interface{}) { output(WARN, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { output(WARN, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...interface{}) { output(ERROR, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
