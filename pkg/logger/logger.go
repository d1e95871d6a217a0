package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the minimum log level to output
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Options configures a Logger. Rotation fields apply only when FilePath is
// set; zero values fall back to sane defaults.
type Options struct {
	Level      string
	Format     string // "json" or "text"
	FilePath   string // empty means stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger provides leveled logging with optional file rotation.
// Supports both JSON and plain text formats.
type Logger struct {
	level      LogLevel
	jsonFormat bool
	writer     io.Writer
	out        *log.Logger
}

// LogEntry represents a structured log entry for JSON output
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a logger from opts. When a file path is given, output goes to
// both stdout and a rotated file.
func New(opts Options) *Logger {
	jsonFormat := opts.Format == "json"

	var writer io.Writer = os.Stdout
	if opts.FilePath != "" {
		dir := filepath.Dir(opts.FilePath)
		if dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0755)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    defaultInt(opts.MaxSizeMB, 100),
			MaxBackups: defaultInt(opts.MaxBackups, 7),
			MaxAge:     defaultInt(opts.MaxAgeDays, 30),
			Compress:   opts.Compress,
		}

		writer = io.MultiWriter(os.Stdout, fileWriter)
	}

	flags := log.LstdFlags
	if !jsonFormat {
		flags |= log.Lmsgprefix
	}

	return &Logger{
		level:      parseLogLevel(opts.Level),
		jsonFormat: jsonFormat,
		writer:     writer,
		out:        log.New(writer, "", flags),
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseLogLevel converts string level to LogLevel enum
func parseLogLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// log writes a log entry with appropriate formatting
func (l *Logger) log(level string, levelEnum LogLevel, format string, v ...interface{}) {
	if levelEnum < l.level {
		return
	}

	message := format
	if len(v) > 0 {
		message = fmt.Sprintf(format, v...)
	}

	if l.jsonFormat {
		l.logJSON(level, message, nil)
		return
	}
	l.out.Printf("[%s] %s", level, message)
}

// logJSON writes a structured JSON log entry
func (l *Logger) logJSON(level, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		l.out.Printf("[%s] %s", level, message)
		return
	}

	fmt.Fprintln(l.writer, string(data))
}

// Info logs an info-level message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log("INFO", LevelInfo, format, v...)
}

// Error logs an error-level message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log("ERROR", LevelError, format, v...)
}

// Warn logs a warning-level message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log("WARN", LevelWarn, format, v...)
}

// Debug logs a debug-level message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log("DEBUG", LevelDebug, format, v...)
}

// WithFields logs a message with additional structured fields (JSON only)
func (l *Logger) WithFields(level string, message string, fields map[string]interface{}) {
	if !l.jsonFormat {
		l.Info("%s: %v", message, fields)
		return
	}

	levelEnum := parseLogLevel(level)
	if levelEnum < l.level {
		return
	}

	l.logJSON(level, message, fields)
}
