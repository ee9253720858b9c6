package logging

// Leveled logging for the CIP stack

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

var levelNames = []string{"silent", "error", "info", "verbose", "debug"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name from configuration into a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	if name == "" {
		return LogLevelInfo, nil
	}
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return LogLevel(i), nil
		}
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q (want silent, error, info, verbose or debug)", name)
}

// Format selects how log lines are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a format name from configuration into a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q (want text or json)", name)
}

// Options configures a Logger.
type Options struct {
	Level  LogLevel
	File   string // optional; receives every message at or above Level
	Format Format
	// LogEvery samples console output: only every n-th non-error message
	// reaches stdout. Errors and the file are never sampled.
	LogEvery int
	Stdout   io.Writer // defaults to os.Stdout
	Stderr   io.Writer // defaults to os.Stderr
}

// Logger provides leveled logging to the console and an optional file.
// A nil *Logger discards everything.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   Format
	logEvery int
	counter  int
	file     *os.File
	fileOut  io.Writer
	stdout   io.Writer
	stderr   io.Writer
	now      func() time.Time
}

// NewLogger creates a text logger on the standard streams.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return New(Options{Level: level, File: logFile})
}

// New creates a logger from opts.
func New(opts Options) (*Logger, error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.LogEvery < 1 {
		opts.LogEvery = 1
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	l := &Logger{
		level:    opts.Level,
		format:   opts.Format,
		logEvery: opts.LogEvery,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		now:      time.Now,
	}
	if opts.File != "" {
		file, err := os.Create(opts.File)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileOut = file
	}
	return l, nil
}

// Nop returns a logger that writes nothing.
func Nop() *Logger {
	return &Logger{
		level:    LogLevelSilent,
		format:   FormatText,
		logEvery: 1,
		stdout:   io.Discard,
		stderr:   io.Discard,
		now:      time.Now,
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.fileOut = nil, nil
	return err
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(LogLevelError, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(LogLevelInfo, format, v...)
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	l.logf(LogLevelVerbose, format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(LogLevelDebug, format, v...)
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && level > LogLevelSilent && l.GetLevel() >= level
}

func (l *Logger) logf(level LogLevel, format string, v ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.write(level, fmt.Sprintf(format, v...))
}

func (l *Logger) render(level LogLevel, msg string) string {
	ts := l.now().UTC()
	if l.format == FormatJSON {
		data, err := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"message"`
		}{ts.Format(time.RFC3339Nano), level.String(), msg})
		if err == nil {
			return string(data) + "\n"
		}
	}
	return fmt.Sprintf("%s %s: %s\n", ts.Format("2006/01/02 15:04:05"), strings.ToUpper(level.String()), msg)
}

// write sends a message to the file and, sampled, to the console.
// Errors go to stderr. Other messages reach stdout only at verbose and above.
func (l *Logger) write(level LogLevel, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.render(level, msg)
	if l.fileOut != nil {
		io.WriteString(l.fileOut, line)
	}

	if level == LogLevelError {
		io.WriteString(l.stderr, line)
		return
	}
	l.counter++
	if l.counter%l.logEvery != 0 {
		return
	}
	if l.level >= LogLevelVerbose {
		io.WriteString(l.stdout, line)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogExchange logs one request/reply exchange. Successful exchanges are
// verbose; status replies and transport failures are info.
func (l *Logger) LogExchange(service, target string, status uint8, rtt time.Duration, err error) {
	if l == nil {
		return
	}
	rttMs := float64(rtt.Microseconds()) / 1000
	switch {
	case err == nil && status == 0:
		l.Verbose("OK %s on %s (RTT: %.3fms)", service, target, rttMs)
	case status != 0:
		l.Info("STATUS 0x%02X %s on %s (RTT: %.3fms)", status, service, target, rttMs)
	default:
		l.Info("FAILED %s on %s: %v", service, target, err)
	}
}

// LogHex logs a byte dump at debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if !l.Enabled(LogLevelDebug) {
		return
	}
	l.Debug("%s (%d bytes): % x", label, len(data), data)
}
